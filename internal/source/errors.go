package source

import "fmt"

// SourceUnavailableError means the tracing service could not be reached,
// authenticated, or understood. It is fatal to a pass.
type SourceUnavailableError struct {
	Op  string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("run source unavailable: %s: %v", e.Op, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func unavailable(op string, err error) error {
	return &SourceUnavailableError{Op: op, Err: err}
}

// APIError is a non-2xx response from the tracing service.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}
