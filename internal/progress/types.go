// Package progress turns quiz score submissions into chapter, course and
// learner-wide aggregates and derives the difficulty placement a learner sees next.
package progress

import "time"

// Difficulty is the content placement derived from a course average.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// Valid reports whether d is one of the known labels.
func (d Difficulty) Valid() bool {
	switch d {
	case Beginner, Intermediate, Advanced:
		return true
	}
	return false
}

// ScoreEvent is a single quiz submission. It is never mutated after creation.
type ScoreEvent struct {
	ID        string    `json:"id"`
	LearnerID string    `json:"learner_id"`
	CourseID  string    `json:"course_id"`
	ChapterID string    `json:"chapter_id"`
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// ChapterAggregate holds every attempt a learner made on one chapter, in
// submission order. Version increases by one on every successful write.
type ChapterAggregate struct {
	ChapterID    string    `json:"chapter_id"`
	Scores       []int     `json:"scores"`
	AverageScore float64   `json:"avg_score"`
	LastUpdated  time.Time `json:"last_updated"`
	Version      int64     `json:"-"`
}

// NewChapterAggregate returns the empty aggregate used before the first attempt.
func NewChapterAggregate(chapterID string) ChapterAggregate {
	return ChapterAggregate{
		ChapterID: chapterID,
		Scores:    []int{},
	}
}

// CourseAggregate summarises all chapters of one course for one learner.
type CourseAggregate struct {
	CourseID      string     `json:"course_id"`
	LastChapterID string     `json:"last_chapter_id,omitempty"`
	AverageScore  float64    `json:"avg_score"`
	Difficulty    Difficulty `json:"difficulty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewCourseAggregate returns the default course state: no scores, beginner placement.
func NewCourseAggregate(courseID string) CourseAggregate {
	return CourseAggregate{
		CourseID:   courseID,
		Difficulty: Beginner,
	}
}

// GlobalAggregate is the learner-wide average over every recorded score.
type GlobalAggregate struct {
	LearnerID          string    `json:"learner_id"`
	GlobalAverageScore float64   `json:"global_avg_score"`
	LastUpdated        time.Time `json:"last_updated"`
}

// Result is what a submission returns to the caller.
type Result struct {
	Difficulty     Difficulty `json:"difficulty"`
	ChapterAverage float64    `json:"chapterAvgScore"`
	CourseAverage  float64    `json:"courseAvgScore"`
	GlobalAverage  float64    `json:"globalAvgScore"`
}

// Update is published to listeners once a submission has been persisted.
type Update struct {
	Event  ScoreEvent `json:"event"`
	Result Result     `json:"result"`
}
