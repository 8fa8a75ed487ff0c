package client

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a package, release, or account does not
// exist in the registry.
var ErrNotFound = errors.New("not found")

// HTTPError represents a non-200 registry response. Any status other
// than 200 rotates the request to the next mirror.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether the response was a 404.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == 404
}

// NotFoundError wraps ErrNotFound with the package context that could
// not be resolved.
type NotFoundError struct {
	Name    string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("package %s version %s not found", e.Name, e.Version)
	}
	return fmt.Sprintf("package %s not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ParseError is returned when a 200 response carries a body that is not
// the JSON it claims to be. It is terminal: the registry itself produced
// the payload, so neither another mirror nor another attempt can repair
// it.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned once every mirror has failed and the
// backoff budget is spent. It wraps the last failure observed so callers
// still see the final URL and status.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("registry unreachable after %d backoff attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
