// Package report builds read-only roll-ups of learner progress for the
// profile and admin views.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-learn/internal/progress"
)

// CourseSummary is one course line of a learner roll-up.
type CourseSummary struct {
	CourseID          string              `json:"courseId"`
	AverageScore      float64             `json:"avgScore"`
	Difficulty        progress.Difficulty `json:"difficulty"`
	LastChapterID     string              `json:"lastChapter,omitempty"`
	Attempts          int                 `json:"attempts"`
	ChaptersAttempted int                 `json:"chaptersAttempted"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// LearnerSummary is the roll-up of one learner.
type LearnerSummary struct {
	LearnerID      string          `json:"learnerId"`
	GlobalAvgScore float64         `json:"globalAvgScore"`
	TotalCourses   int             `json:"totalCourses"`
	Attempts       int             `json:"attempts"`
	LastUpdated    time.Time       `json:"lastUpdated"`
	Courses        []CourseSummary `json:"courses"`

	Profile *progress.LearnerProfile `json:"learnerProfile,omitempty"`
}

// Reporter reads aggregates from a progress store.
//
// Reads run concurrently with submissions and may observe a course that is
// newer than the learner's global average. Summaries report what is stored.
type Reporter struct {
	store   progress.Store
	timeout time.Duration
}

func NewReporter(store progress.Store) *Reporter {
	return &Reporter{store: store, timeout: progress.DefaultIOTimeout}
}

// SetTimeout bounds the reads behind one learner summary. Non-positive values
// are ignored.
func (r *Reporter) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Learner returns the roll-up for one learner. A learner with no progress
// gets an empty summary.
func (r *Reporter) Learner(ctx context.Context, learnerID string) (LearnerSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sum := LearnerSummary{LearnerID: learnerID, Courses: []CourseSummary{}}

	if ps, ok := r.store.(progress.ProfileStore); ok {
		p, found, err := ps.GetProfile(ctx, learnerID)
		if err != nil {
			return LearnerSummary{}, fmt.Errorf("read profile of %s: %w", learnerID, err)
		}
		if found {
			sum.Profile = &p
		}
	}

	global, found, err := r.store.GetGlobal(ctx, learnerID)
	if err != nil {
		return LearnerSummary{}, fmt.Errorf("read learner %s: %w", learnerID, err)
	}
	if found {
		sum.GlobalAvgScore = global.GlobalAverageScore
		sum.LastUpdated = global.LastUpdated
	}

	courses, err := r.store.ListCourses(ctx, learnerID)
	if err != nil {
		return LearnerSummary{}, fmt.Errorf("read courses of %s: %w", learnerID, err)
	}
	for _, c := range courses {
		chapters, err := r.store.ListChapters(ctx, learnerID, c.CourseID)
		if err != nil {
			return LearnerSummary{}, fmt.Errorf("read chapters of %s/%s: %w", learnerID, c.CourseID, err)
		}
		cs := CourseSummary{
			CourseID:      c.CourseID,
			AverageScore:  c.AverageScore,
			Difficulty:    c.Difficulty,
			LastChapterID: c.LastChapterID,
			UpdatedAt:     c.UpdatedAt,
		}
		for _, ch := range chapters {
			if len(ch.Scores) > 0 {
				cs.ChaptersAttempted++
			}
			cs.Attempts += len(ch.Scores)
		}
		sum.Attempts += cs.Attempts
		sum.Courses = append(sum.Courses, cs)
	}
	sum.TotalCourses = len(sum.Courses)
	if err := ctx.Err(); err != nil {
		return LearnerSummary{}, fmt.Errorf("read learner %s: %w", learnerID, err)
	}
	return sum, nil
}

// Learners returns a roll-up for every learner with recorded progress.
func (r *Reporter) Learners(ctx context.Context) ([]LearnerSummary, error) {
	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	ids, err := r.store.ListLearners(lctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	out := make([]LearnerSummary, 0, len(ids))
	for _, id := range ids {
		sum, err := r.Learner(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}
