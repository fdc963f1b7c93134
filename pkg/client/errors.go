package client

import (
	"errors"
	"fmt"
)

// TransportError means the target could not be reached at all.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError means the target answered with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

// DecodeError means the target answered but the body was not in the
// expected shape. Body keeps the raw payload for logging.
type DecodeError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the target.
func IsNotFound(err error) bool {
	return StatusCode(err) == 404
}
