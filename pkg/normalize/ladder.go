package normalize

import (
	"errors"
	"fmt"
)

// ErrValidationFailed is returned when no ladder step produced a valid result
var ErrValidationFailed = errors.New("model output failed schema validation")

// Step is one rung of a normalization ladder
type Step[T any] struct {
	Name    string
	Attempt func() (T, error)
}

// RunLadder evaluates steps in order and returns the first result that
// validates together with the name of the step that produced it.
func RunLadder[T any](steps []Step[T]) (T, string, error) {
	var (
		zero T
		errs []error
	)
	for _, step := range steps {
		result, err := step.Attempt()
		if err == nil {
			return result, step.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
	}
	return zero, "", fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
}
