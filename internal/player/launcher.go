// Package player starts an external media player on a set of stream URLs and
// reports what the process says afterwards. The process is detached: it keeps
// running when the caller or the whole program goes away.
package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/telemetry"
)

var (
	ErrNoExecutable = errors.New("player executable is not set")
	ErrNoURLs       = errors.New("no stream urls to play")
)

// LaunchError is returned when the player process could not be started.
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch player %q: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// EventKind tells what an Event carries.
type EventKind string

const (
	// EventStderr carries a stderr line that looks like a problem report.
	EventStderr EventKind = "stderr"
	// EventExit is sent once when the process ends.
	EventExit EventKind = "exit"
)

// Event is an informational notice about a launched process.
type Event struct {
	Kind     EventKind
	PID      int
	Line     string
	ExitCode int
	Err      error
}

// Result describes a started process.
type Result struct {
	PID        int
	Executable string
	StartedAt  time.Time
}

// Launcher starts player processes.
type Launcher struct {
	telemetry *telemetry.Telemetry
}

func NewLauncher(tel *telemetry.Telemetry) *Launcher {
	return &Launcher{telemetry: tel}
}

// Launch resolves executable, starts it with urls as arguments and returns as soon
// as the process is running. stderr lines mentioning an error or a failure and the
// final exit status are passed to onEvent from a background goroutine.
func (l *Launcher) Launch(ctx context.Context, executable string, urls []string, onEvent func(Event)) (*Result, error) {
	var result *Result

	err := l.telemetry.InstrumentLaunch(ctx, func(ctx context.Context) error {
		var err error
		result, err = l.launch(ctx, executable, urls, onEvent)

		return err
	})

	return result, err
}

func (l *Launcher) launch(ctx context.Context, executable string, urls []string, onEvent func(Event)) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	executable = strings.TrimSpace(executable)
	if executable == "" {
		return nil, ErrNoExecutable
	}

	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	path, err := exec.LookPath(executable)
	if err != nil {
		return nil, &LaunchError{Executable: executable, Err: err}
	}

	// exec.Command rather than CommandContext: the player must outlive ctx.
	cmd := exec.Command(path, urls...)
	detach(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Executable: path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Executable: path, Err: err}
	}

	result := &Result{
		PID:        cmd.Process.Pid,
		Executable: path,
		StartedAt:  time.Now(),
	}

	logger.InfoContext(ctx, "player started", "executable", path, "pid", result.PID, "urls", len(urls))

	emit := func(e Event) {
		if onEvent != nil {
			onEvent(e)
		}
	}

	bgCtx := context.WithoutCancel(ctx)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if !isProblemLine(line) {
				continue
			}

			logger.WarnContext(bgCtx, "player reported a problem", "pid", result.PID, "line", line)
			emit(Event{Kind: EventStderr, PID: result.PID, Line: line})
		}

		// Keep draining after an oversized line so the player never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, stderr)

		// Wait closes the stderr pipe, so it has to run after the scanner drained it.
		waitErr := cmd.Wait()

		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}

		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			logger.WarnContext(bgCtx, "player wait failed", "pid", result.PID, "err", waitErr)
		}

		logger.InfoContext(bgCtx, "player exited", "pid", result.PID, "exit_code", code)
		emit(Event{Kind: EventExit, PID: result.PID, ExitCode: code, Err: waitErr})
	}()

	return result, nil
}

func isProblemLine(line string) bool {
	lower := strings.ToLower(line)

	return strings.Contains(lower, "error") || strings.Contains(lower, "failed")
}
