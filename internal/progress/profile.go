package progress

import (
	"context"
	"time"
)

// LearnerProfile is the self-description a learner keeps on their account.
type LearnerProfile struct {
	Preferences string    `json:"preferences"`
	Goals       string    `json:"goals"`
	Strengths   string    `json:"strengths"`
	Weaknesses  string    `json:"weaknesses"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProfileStore is implemented by stores that keep learner profiles.
// A profile alone does not make a learner show up in ListLearners.
type ProfileStore interface {
	GetProfile(ctx context.Context, learnerID string) (LearnerProfile, bool, error)
	PutProfile(ctx context.Context, learnerID string, p LearnerProfile) error
}

func (s *MemoryStore) GetProfile(_ context.Context, learnerID string) (LearnerProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.learners[learnerID]
	if !ok || l.profile == nil {
		return LearnerProfile{}, false, nil
	}
	return *l.profile, true, nil
}

func (s *MemoryStore) PutProfile(_ context.Context, learnerID string, p LearnerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.ensureLearner(learnerID)
	l.profile = &p
	return nil
}
