package progress

const (
	MinScore = 0
	MaxScore = 100
)

// ValidateScore returns an InvalidScoreError when score is out of range.
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return &InvalidScoreError{Score: score}
	}
	return nil
}

// RecordChapterScore appends score to the existing attempts and returns the new
// sequence together with its mean. The input slice is not modified.
func RecordChapterScore(existing []int, score int) ([]int, float64, error) {
	if err := ValidateScore(score); err != nil {
		return nil, 0, err
	}
	updated := make([]int, len(existing), len(existing)+1)
	copy(updated, existing)
	updated = append(updated, score)
	return updated, mean(updated), nil
}

// RecomputeCourseAverage is the mean of every individual score across all
// chapters of a course. Chapters without attempts add nothing to the pool.
func RecomputeCourseAverage(chapters map[string][]int) float64 {
	return poolMean(chapters)
}

// RecomputeGlobalAverage applies the same flattening across every course of a learner.
func RecomputeGlobalAverage(courses map[string][]int) float64 {
	return poolMean(courses)
}

// ClassifyDifficulty maps a course average to a placement. Each band includes
// its lower bound.
func ClassifyDifficulty(avg float64) Difficulty {
	switch {
	case avg >= 80:
		return Advanced
	case avg >= 50:
		return Intermediate
	default:
		return Beginner
	}
}

func poolMean(pools map[string][]int) float64 {
	var sum, n int
	for _, scores := range pools {
		for _, s := range scores {
			sum += s
		}
		n += len(scores)
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func mean(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

// flatten concatenates the score sequences of chapters.
func flatten(chapters []ChapterAggregate) []int {
	var n int
	for _, ch := range chapters {
		n += len(ch.Scores)
	}
	out := make([]int, 0, n)
	for _, ch := range chapters {
		out = append(out, ch.Scores...)
	}
	return out
}

func chapterPools(chapters []ChapterAggregate) map[string][]int {
	pools := make(map[string][]int, len(chapters))
	for _, ch := range chapters {
		pools[ch.ChapterID] = ch.Scores
	}
	return pools
}
