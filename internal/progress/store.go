package progress

import (
	"context"
	"sort"
	"sync"
)

// Store persists aggregates keyed by learner, course and chapter.
// Get methods report absence with found=false rather than an error.
type Store interface {
	GetCourse(ctx context.Context, learnerID, courseID string) (CourseAggregate, bool, error)
	GetChapter(ctx context.Context, learnerID, courseID, chapterID string) (ChapterAggregate, bool, error)
	// PutChapter writes ch only if the stored version still equals ch.Version
	// (zero for a chapter that does not exist yet) and returns the stored value
	// with its new version. Otherwise it returns ErrVersionConflict.
	PutChapter(ctx context.Context, learnerID, courseID string, ch ChapterAggregate) (ChapterAggregate, error)
	ListChapters(ctx context.Context, learnerID, courseID string) ([]ChapterAggregate, error)
	PutCourse(ctx context.Context, learnerID string, c CourseAggregate) error
	ListCourses(ctx context.Context, learnerID string) ([]CourseAggregate, error)
	GetGlobal(ctx context.Context, learnerID string) (GlobalAggregate, bool, error)
	PutGlobal(ctx context.Context, g GlobalAggregate) error
	ListLearners(ctx context.Context) ([]string, error)
}

// Transactor is implemented by stores that can run a unit of work atomically.
// Units for the same learner never run concurrently, and nothing written
// inside a failed unit stays visible.
type Transactor interface {
	InTx(ctx context.Context, learnerID string, fn func(ctx context.Context, s Store) error) error
}

type memCourse struct {
	agg      *CourseAggregate
	chapters map[string]ChapterAggregate
}

type memLearner struct {
	global  *GlobalAggregate
	profile *LearnerProfile
	courses map[string]*memCourse
}

// MemoryStore is an in-memory implementation of Store and Transactor.
type MemoryStore struct {
	learners map[string]*memLearner
	locks    map[string]*sync.Mutex
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		learners: make(map[string]*memLearner),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) GetCourse(_ context.Context, learnerID, courseID string) (CourseAggregate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.course(learnerID, courseID)
	if c == nil || c.agg == nil {
		return CourseAggregate{}, false, nil
	}
	return *c.agg, true, nil
}

func (s *MemoryStore) GetChapter(_ context.Context, learnerID, courseID, chapterID string) (ChapterAggregate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.course(learnerID, courseID)
	if c == nil {
		return ChapterAggregate{}, false, nil
	}
	ch, ok := c.chapters[chapterID]
	if !ok {
		return ChapterAggregate{}, false, nil
	}
	return copyChapter(ch), true, nil
}

func (s *MemoryStore) PutChapter(_ context.Context, learnerID, courseID string, ch ChapterAggregate) (ChapterAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureCourse(learnerID, courseID)
	if current := c.chapters[ch.ChapterID]; current.Version != ch.Version {
		return ChapterAggregate{}, ErrVersionConflict
	}

	stored := copyChapter(ch)
	stored.Version = ch.Version + 1
	c.chapters[ch.ChapterID] = stored
	return copyChapter(stored), nil
}

func (s *MemoryStore) ListChapters(_ context.Context, learnerID, courseID string) ([]ChapterAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.course(learnerID, courseID)
	if c == nil {
		return []ChapterAggregate{}, nil
	}
	out := make([]ChapterAggregate, 0, len(c.chapters))
	for _, ch := range c.chapters {
		out = append(out, copyChapter(ch))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterID < out[j].ChapterID })
	return out, nil
}

func (s *MemoryStore) PutCourse(_ context.Context, learnerID string, agg CourseAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ensureCourse(learnerID, agg.CourseID)
	c.agg = &agg
	return nil
}

func (s *MemoryStore) ListCourses(_ context.Context, learnerID string) ([]CourseAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.learners[learnerID]
	if !ok {
		return []CourseAggregate{}, nil
	}
	out := make([]CourseAggregate, 0, len(l.courses))
	for _, c := range l.courses {
		if c.agg != nil {
			out = append(out, *c.agg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *MemoryStore) GetGlobal(_ context.Context, learnerID string) (GlobalAggregate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.learners[learnerID]
	if !ok || l.global == nil {
		return GlobalAggregate{}, false, nil
	}
	return *l.global, true, nil
}

func (s *MemoryStore) PutGlobal(_ context.Context, g GlobalAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.ensureLearner(g.LearnerID)
	l.global = &g
	return nil
}

func (s *MemoryStore) ListLearners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.learners))
	for id, l := range s.learners {
		if l.global == nil && len(l.courses) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// InTx serialises units per learner and restores the learner's previous state
// if fn fails.
func (s *MemoryStore) InTx(ctx context.Context, learnerID string, fn func(ctx context.Context, s Store) error) error {
	lock := s.learnerLock(learnerID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	snapshot, existed := s.learners[learnerID]
	if existed {
		snapshot = snapshot.clone()
	}
	s.mu.RUnlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		if existed {
			s.learners[learnerID] = snapshot
		} else {
			delete(s.learners, learnerID)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) learnerLock(learnerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[learnerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[learnerID] = lock
	}
	return lock
}

func (s *MemoryStore) course(learnerID, courseID string) *memCourse {
	l, ok := s.learners[learnerID]
	if !ok {
		return nil
	}
	return l.courses[courseID]
}

func (s *MemoryStore) ensureLearner(learnerID string) *memLearner {
	l, ok := s.learners[learnerID]
	if !ok {
		l = &memLearner{courses: make(map[string]*memCourse)}
		s.learners[learnerID] = l
	}
	return l
}

func (s *MemoryStore) ensureCourse(learnerID, courseID string) *memCourse {
	l := s.ensureLearner(learnerID)
	c, ok := l.courses[courseID]
	if !ok {
		c = &memCourse{chapters: make(map[string]ChapterAggregate)}
		l.courses[courseID] = c
	}
	return c
}

func (l *memLearner) clone() *memLearner {
	out := &memLearner{courses: make(map[string]*memCourse, len(l.courses))}
	if l.global != nil {
		g := *l.global
		out.global = &g
	}
	if l.profile != nil {
		p := *l.profile
		out.profile = &p
	}
	for id, c := range l.courses {
		cc := &memCourse{chapters: make(map[string]ChapterAggregate, len(c.chapters))}
		if c.agg != nil {
			agg := *c.agg
			cc.agg = &agg
		}
		for chID, ch := range c.chapters {
			cc.chapters[chID] = copyChapter(ch)
		}
		out.courses[id] = cc
	}
	return out
}

func copyChapter(ch ChapterAggregate) ChapterAggregate {
	scores := make([]int, len(ch.Scores))
	copy(scores, ch.Scores)
	ch.Scores = scores
	return ch
}
