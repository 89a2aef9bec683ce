package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a computation that cannot proceed with the data
	// it was given. It aborts one candidate only.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTooManyCandidates is matched by *TooManyCandidatesError.
	ErrTooManyCandidates = errors.New("too many candidates")
)

// TooManyCandidatesError is returned when the radius filter retains more
// supports than the configured maximum.
type TooManyCandidatesError struct {
	Count int
	Max   int
}

func (e *TooManyCandidatesError) Error() string {
	return fmt.Sprintf("%d supports found within the search radius (max %d); narrow the search radius", e.Count, e.Max)
}

// Is lets errors.Is(err, ErrTooManyCandidates) match.
func (e *TooManyCandidatesError) Is(target error) bool {
	return target == ErrTooManyCandidates
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
