package progress

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is returned by Store.PutChapter when the stored chapter
// changed since it was read.
var ErrVersionConflict = errors.New("chapter aggregate version conflict")

// InvalidScoreError rejects a score outside [MinScore, MaxScore].
type InvalidScoreError struct {
	Score int
}

func (e *InvalidScoreError) Error() string {
	return fmt.Sprintf("invalid score %d: must be an integer between %d and %d", e.Score, MinScore, MaxScore)
}

// PersistenceError wraps any failure to read or write the score store.
// Step names the operation that failed.
type PersistenceError struct {
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsInvalidScore reports whether err is, or wraps, an InvalidScoreError.
func IsInvalidScore(err error) bool {
	var target *InvalidScoreError
	return errors.As(err, &target)
}

// IsPersistence reports whether err is, or wraps, a PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
