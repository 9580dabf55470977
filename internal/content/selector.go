package content

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-learn/internal/progress"
)

// Selector picks the chapters a learner should see next.
type Selector struct {
	catalog *Catalog
	store   progress.Store
	cache   DifficultyCache
	timeout time.Duration
}

// NewSelector creates a selector. A nil cache disables caching.
func NewSelector(catalog *Catalog, store progress.Store, dc DifficultyCache) *Selector {
	if dc == nil {
		dc = NopDifficultyCache{}
	}
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Selector{catalog: catalog, store: store, cache: dc, timeout: progress.DefaultIOTimeout}
}

// SetTimeout bounds each store and cache call. Non-positive values are ignored.
func (s *Selector) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Difficulty returns the learner's current placement for courseID, beginner
// when nothing has been recorded yet. Cache failures fall back to the store.
func (s *Selector) Difficulty(ctx context.Context, learnerID, courseID string) (progress.Difficulty, error) {
	d, ok, err := s.cacheGet(ctx, learnerID, courseID)
	if err != nil {
		slog.Warn("difficulty cache read failed", "learner_id", learnerID, "course_id", courseID, "error", err)
	}
	if ok {
		return d, nil
	}

	course, found, err := s.readCourse(ctx, learnerID, courseID)
	if err != nil {
		return "", &progress.PersistenceError{Step: "read course", Err: err}
	}
	d = progress.Beginner
	if found && course.Difficulty.Valid() {
		d = course.Difficulty
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.cache.Set(cctx, learnerID, courseID, d); err != nil {
		slog.Warn("difficulty cache write failed", "learner_id", learnerID, "course_id", courseID, "error", err)
	}
	return d, nil
}

func (s *Selector) cacheGet(ctx context.Context, learnerID, courseID string) (progress.Difficulty, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.cache.Get(ctx, learnerID, courseID)
}

func (s *Selector) readCourse(ctx context.Context, learnerID, courseID string) (progress.CourseAggregate, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	course, found, err := s.store.GetCourse(ctx, learnerID, courseID)
	if err == nil {
		err = ctx.Err()
	}
	return course, found, err
}

// ForLearner returns the chapters of courseID matching the learner's placement.
// An unknown course yields an empty list.
func (s *Selector) ForLearner(ctx context.Context, learnerID, courseID string) ([]Chapter, error) {
	d, err := s.Difficulty(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("resolve difficulty: %w", err)
	}
	return s.catalog.ChaptersAt(courseID, d), nil
}

// ProgressRecorded drops the cached placement so the next read sees the
// newly committed course aggregate.
func (s *Selector) ProgressRecorded(ctx context.Context, u progress.Update) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, u.Event.LearnerID, u.Event.CourseID); err != nil {
		slog.Warn("difficulty cache invalidation failed",
			"learner_id", u.Event.LearnerID,
			"course_id", u.Event.CourseID,
			"error", err,
		)
	}
}
