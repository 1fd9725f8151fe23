package daemon

import (
	"errors"
	"io"
	"testing"
)

// TestRequestError_Error verifies error message formatting
func TestRequestError_Error(t *testing.T) {
	err := &RequestError{
		Operation:  "get",
		StatusCode: 503,
		Message:    "Service Unavailable",
	}

	expected := "daemon request get failed (HTTP 503): Service Unavailable"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestAuthError_Error verifies error message formatting
func TestAuthError_Error(t *testing.T) {
	err := &AuthError{Operation: "add"}

	expected := "daemon rejected credentials during add"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestTransportError_Unwrap verifies the network cause stays reachable
func TestTransportError_Unwrap(t *testing.T) {
	err := &TransportError{Operation: "get", Err: io.ErrUnexpectedEOF}

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("errors.Is(%v, io.ErrUnexpectedEOF) = false, want true", err)
	}

	expected := "daemon unreachable during get: unexpected EOF"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestErrorsAs_ThroughWrapping verifies classification survives fmt.Errorf wrapping
func TestErrorsAs_ThroughWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		match func(error) bool
	}{
		{
			name: "auth",
			err:  &AuthError{Operation: "add"},
			match: func(err error) bool {
				var target *AuthError
				return errors.As(err, &target)
			},
		},
		{
			name: "request",
			err:  &RequestError{Operation: "get", StatusCode: 500},
			match: func(err error) bool {
				var target *RequestError
				return errors.As(err, &target) && target.StatusCode == 500
			},
		},
		{
			name: "transport",
			err:  &TransportError{Operation: "get", Err: io.EOF},
			match: func(err error) bool {
				var target *TransportError
				return errors.As(err, &target)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Join(errors.New("context"), tt.err)
			if !tt.match(wrapped) {
				t.Errorf("errors.As did not match %T through wrapping", tt.err)
			}
		})
	}
}
