package generate

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey is returned when no provider API key is configured
	ErrMissingAPIKey = errors.New("generation provider API key is not configured")

	// ErrEmptyResponse is returned when the provider answered without any text
	ErrEmptyResponse = errors.New("generation provider returned an empty response")

	// ErrInvalidImage is returned when an inline image cannot be decoded or is not accepted
	ErrInvalidImage = errors.New("invalid image")
)

// ProviderError is returned for non-2xx provider responses and transport failures.
// StatusCode is 0 when the request never got a response.
type ProviderError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("generation provider unreachable: %v", e.Err)
	}
	return fmt.Sprintf("generation provider returned status %d: %s", e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err is or wraps a *ProviderError
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
