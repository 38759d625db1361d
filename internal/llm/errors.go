package llm

import (
	"errors"
	"fmt"
)

// ErrCancelled reports that a generation was stopped on purpose, either by
// the user or by a session switch. It is never surfaced as an error to the
// user.
var ErrCancelled = errors.New("generation cancelled")

// HTTPError is a non-2xx response from the proxy or the upstream backend.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// NetworkError is a connection-level failure: DNS, refused connection,
// broken stream.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
