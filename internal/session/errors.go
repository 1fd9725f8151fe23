package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/player"
	"github.com/reyohoho/torrent_player/internal/poller"
)

var (
	ErrNoPlayableFiles = errors.New("torrent has no playable files")
	ErrClosed          = errors.New("session is closed")
	ErrUnknownFile     = errors.New("file is not part of the playable list")
	ErrEmptySelection  = errors.New("no files selected")
	ErrInvalidMagnet   = errors.New("invalid magnet link")
	ErrInvalidServer   = errors.New("daemon server has no base url")
	ErrNotFound        = errors.New("session not found")
)

// TransitionError is returned when an operation is not allowed in the current phase.
type TransitionError struct {
	Operation string
	Phase     Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Operation, e.Phase)
}

// ErrInvalidTransition matches every *TransitionError with errors.Is.
var ErrInvalidTransition = errors.New("invalid session transition")

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// FailureKind is the bounded classification of a session failure.
type FailureKind string

const (
	FailureAuth            FailureKind = "auth"
	FailureRequest         FailureKind = "request"
	FailureTransport       FailureKind = "transport"
	FailureExhausted       FailureKind = "exhausted"
	FailureCancelled       FailureKind = "cancelled"
	FailureNoPlayableFiles FailureKind = "no_playable_files"
	FailureLaunch          FailureKind = "launch_failed"
	FailureInternal        FailureKind = "internal"
)

// Failure is what the presentation layer gets to see about a failed step.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
	StatusCode int         `json:"status_code,omitempty"`
}

// ClassifyError maps an error from the daemon, poller or launcher to a failure kind.
func ClassifyError(err error) FailureKind {
	var (
		authErr      *daemon.AuthError
		requestErr   *daemon.RequestError
		transportErr *daemon.TransportError
		launchErr    *player.LaunchError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return FailureAuth
	case errors.As(err, &requestErr):
		return FailureRequest
	case errors.As(err, &transportErr):
		return FailureTransport
	case errors.Is(err, poller.ErrExhausted):
		return FailureExhausted
	case errors.Is(err, poller.ErrCancelled), errors.Is(err, context.Canceled):
		return FailureCancelled
	case errors.Is(err, poller.ErrNoContent), errors.Is(err, ErrNoPlayableFiles):
		return FailureNoPlayableFiles
	case errors.As(err, &launchErr), errors.Is(err, player.ErrNoExecutable), errors.Is(err, player.ErrNoURLs):
		return FailureLaunch
	default:
		return FailureInternal
	}
}

func newFailure(err error) *Failure {
	f := &Failure{Kind: ClassifyError(err), Message: err.Error()}

	var requestErr *daemon.RequestError
	if errors.As(err, &requestErr) {
		f.StatusCode = requestErr.StatusCode
	}

	return f
}
