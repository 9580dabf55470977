package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultIOTimeout bounds a single store call when no timeout is configured.
const DefaultIOTimeout = 5 * time.Second

const defaultMaxRetries = 5

// Listener is notified after a submission has been persisted.
type Listener interface {
	ProgressRecorded(ctx context.Context, u Update)
}

// OrchestratorConfig holds dependencies for the orchestrator.
type OrchestratorConfig struct {
	Store      Store
	Events     EventLogger
	Listeners  []Listener
	IOTimeout  time.Duration // per store call (default 5s)
	MaxRetries int           // retries after a chapter version conflict (default 5)
	Now        func() time.Time
}

// Orchestrator sequences store reads, aggregation and writes for a submission.
type Orchestrator struct {
	store      Store
	events     EventLogger
	listeners  []Listener
	ioTimeout  time.Duration
	maxRetries int
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. A nil Store falls back to a MemoryStore.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	timeout := cfg.IOTimeout
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:      store,
		events:     events,
		listeners:  cfg.Listeners,
		ioTimeout:  timeout,
		maxRetries: retries,
		now:        now,
	}
}

// AddListener registers l for future submissions. Not safe to call while
// submissions are in flight.
func (o *Orchestrator) AddListener(l Listener) {
	o.listeners = append(o.listeners, l)
}

// Store returns the underlying store for read paths.
func (o *Orchestrator) Store() Store {
	return o.store
}

// SubmitScore records one quiz score and returns the recomputed aggregates.
//
// When the store implements Transactor the chapter, course and global writes
// commit together. Otherwise they are issued one after another and a failure
// part way leaves the earlier writes in place.
func (o *Orchestrator) SubmitScore(ctx context.Context, learnerID, courseID, chapterID string, score int) (Result, error) {
	if err := ValidateScore(score); err != nil {
		return Result{}, err
	}

	ev := ScoreEvent{
		ID:        uuid.NewString(),
		LearnerID: learnerID,
		CourseID:  courseID,
		ChapterID: chapterID,
		Score:     score,
		Timestamp: o.now().UTC(),
	}

	var (
		res Result
		err error
	)
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		res, err = o.apply(ctx, ev)
		if !errors.Is(err, ErrVersionConflict) {
			break
		}
		slog.Warn("chapter changed concurrently, retrying",
			"learner_id", learnerID,
			"course_id", courseID,
			"chapter_id", chapterID,
			"attempt", attempt+1,
		)
	}
	if errors.Is(err, ErrVersionConflict) {
		return Result{}, &PersistenceError{
			Step: "write chapter",
			Err:  fmt.Errorf("gave up after %d attempts: %w", o.maxRetries+1, ErrVersionConflict),
		}
	}
	if err != nil {
		return Result{}, err
	}

	if err := o.events.LogEvent(ctx, ev); err != nil {
		slog.Warn("failed to log score event", "event_id", ev.ID, "error", err)
	}
	u := Update{Event: ev, Result: res}
	for _, l := range o.listeners {
		l.ProgressRecorded(ctx, u)
	}

	return res, nil
}

func (o *Orchestrator) apply(ctx context.Context, ev ScoreEvent) (Result, error) {
	tx, ok := o.store.(Transactor)
	if !ok {
		return o.run(ctx, o.store, ev)
	}

	var res Result
	err := tx.InTx(ctx, ev.LearnerID, func(ctx context.Context, s Store) error {
		var err error
		res, err = o.run(ctx, s, ev)
		return err
	})
	if err != nil && !IsPersistence(err) {
		err = &PersistenceError{Step: "transaction", Err: err}
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, s Store, ev ScoreEvent) (Result, error) {
	var (
		course  CourseAggregate
		chapter ChapterAggregate
		found   bool
	)

	err := o.step(ctx, "read course", func(ctx context.Context) error {
		var err error
		course, found, err = s.GetCourse(ctx, ev.LearnerID, ev.CourseID)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if !found {
		course = NewCourseAggregate(ev.CourseID)
	}

	err = o.step(ctx, "read chapter", func(ctx context.Context) error {
		var err error
		chapter, found, err = s.GetChapter(ctx, ev.LearnerID, ev.CourseID, ev.ChapterID)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if !found {
		chapter = NewChapterAggregate(ev.ChapterID)
	}

	scores, chapterAvg, err := RecordChapterScore(chapter.Scores, ev.Score)
	if err != nil {
		return Result{}, err
	}
	chapter.Scores = scores
	chapter.AverageScore = chapterAvg
	chapter.LastUpdated = ev.Timestamp

	err = o.step(ctx, "write chapter", func(ctx context.Context) error {
		_, err := s.PutChapter(ctx, ev.LearnerID, ev.CourseID, chapter)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	var chapters []ChapterAggregate
	err = o.step(ctx, "read course chapters", func(ctx context.Context) error {
		var err error
		chapters, err = s.ListChapters(ctx, ev.LearnerID, ev.CourseID)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	courseAvg := RecomputeCourseAverage(chapterPools(chapters))
	difficulty := ClassifyDifficulty(courseAvg)

	if difficulty != course.Difficulty {
		slog.Info("difficulty changed",
			"learner_id", ev.LearnerID,
			"course_id", ev.CourseID,
			"from", course.Difficulty,
			"to", difficulty,
		)
	}
	course.LastChapterID = ev.ChapterID
	course.AverageScore = courseAvg
	course.Difficulty = difficulty
	course.UpdatedAt = ev.Timestamp

	err = o.step(ctx, "write course", func(ctx context.Context) error {
		return s.PutCourse(ctx, ev.LearnerID, course)
	})
	if err != nil {
		return Result{}, err
	}

	pools, err := o.learnerPools(ctx, s, ev, chapters)
	if err != nil {
		return Result{}, err
	}
	globalAvg := RecomputeGlobalAverage(pools)

	err = o.step(ctx, "write global", func(ctx context.Context) error {
		return s.PutGlobal(ctx, GlobalAggregate{
			LearnerID:          ev.LearnerID,
			GlobalAverageScore: globalAvg,
			LastUpdated:        ev.Timestamp,
		})
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Difficulty:     difficulty,
		ChapterAverage: chapterAvg,
		CourseAverage:  courseAvg,
		GlobalAverage:  globalAvg,
	}, nil
}

// learnerPools builds the flattened score pool of every course the learner has.
// current holds the chapters of the submitted course, already read.
func (o *Orchestrator) learnerPools(ctx context.Context, s Store, ev ScoreEvent, current []ChapterAggregate) (map[string][]int, error) {
	var courses []CourseAggregate
	err := o.step(ctx, "read courses", func(ctx context.Context) error {
		var err error
		courses, err = s.ListCourses(ctx, ev.LearnerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	pools := map[string][]int{ev.CourseID: flatten(current)}
	for _, c := range courses {
		if c.CourseID == ev.CourseID {
			continue
		}
		var chapters []ChapterAggregate
		err := o.step(ctx, "read course chapters", func(ctx context.Context) error {
			var err error
			chapters, err = s.ListChapters(ctx, ev.LearnerID, c.CourseID)
			return err
		})
		if err != nil {
			return nil, err
		}
		pools[c.CourseID] = flatten(chapters)
	}
	return pools, nil
}

// step runs one store call under the per-call timeout. A call that returns
// after its deadline has passed counts as failed, so the enclosing unit rolls
// back even when the store ignored cancellation.
func (o *Orchestrator) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.ioTimeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return &PersistenceError{Step: name, Err: err}
	}
	return nil
}
