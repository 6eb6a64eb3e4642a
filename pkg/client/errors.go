package client

import (
	"errors"
	"fmt"
)

// ErrServerUnreachable matches *ServerUnreachableError with errors.Is().
var ErrServerUnreachable = errors.New("server unreachable")

// APIError is returned for non-2xx responses from the server.
type APIError struct {
	// StatusCode is the HTTP status the server returned.
	StatusCode int
	// Err carries the response body.
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("routewarden [HTTP %d]: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// ServerUnreachableError is returned in fail-closed mode when the server
// cannot be contacted.
type ServerUnreachableError struct {
	Cause error
}

func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

func (e *ServerUnreachableError) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}

// isConnectionError reports whether an error came from the connection
// rather than the server. HTTP-level errors are not connection errors;
// everything else from http.Client.Do (DNS, refused, timeout) is.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	return !errors.As(err, &apiErr)
}
