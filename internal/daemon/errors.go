package daemon

import "fmt"

// AuthError is returned when the daemon rejects the configured credentials (HTTP 401).
// It is terminal for the session: retrying with the same credentials cannot succeed.
type AuthError struct {
	Operation string // The daemon action that was rejected ("add", "get")
	Err       error  // Underlying error, if any
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("daemon rejected credentials during %s", e.Operation)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestError represents a reachable daemon answering with an application level
// failure: any non-2xx status other than 401, or a body that cannot be understood.
type RequestError struct {
	Operation  string // The daemon action that failed
	StatusCode int    // HTTP status code returned by the daemon
	Message    string // Status text or decoding problem
	Err        error  // Underlying error, if any
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("daemon request %s failed (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// TransportError represents a failure to reach the daemon at all: DNS, refused
// connections, timeouts, resets.
type TransportError struct {
	Operation string // The daemon action that could not be delivered
	Err       error  // Underlying network error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("daemon unreachable during %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
