package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/media"
	"github.com/reyohoho/torrent_player/internal/player"
	"github.com/reyohoho/torrent_player/internal/poller"
	"github.com/reyohoho/torrent_player/internal/stats"
	"github.com/reyohoho/torrent_player/internal/telemetry"
)

// Launcher starts an external player on a list of stream URLs.
type Launcher interface {
	Launch(ctx context.Context, executable string, urls []string, onEvent func(player.Event)) (*player.Result, error)
}

// Preferences persists user choices between sessions.
type Preferences interface {
	SaveFileSelection(ctx context.Context, hash, serverID string, fileIDs []int) error
	FileSelection(ctx context.Context, hash string) ([]int, error)
	SavePlayerPath(ctx context.Context, path string) error
	PlayerPath(ctx context.Context) (string, error)
}

// environment is the read-only wiring shared by all sessions of a Manager.
type environment struct {
	client          daemon.API
	launcher        Launcher
	streamer        *stats.Streamer
	prefs           Preferences
	telemetry       *telemetry.Telemetry
	pollInterval    time.Duration
	pollMaxAttempts int
	defaultPlayer   string
	backlog         int
}

// Session drives one magnet link from submission to playback. All methods are
// safe for concurrent use.
//
// Every background step runs under a generation number. Cancel, Close and
// SelectServer bump the generation, so results of superseded work are dropped.
type Session struct {
	id        string
	magnet    string
	infoHash  string
	name      string
	createdAt time.Time
	env       *environment

	// ctx is the session root: cancelling it stops acquisition and stats.
	ctx    context.Context
	cancel context.CancelFunc

	launchMu sync.Mutex

	mu            sync.Mutex
	phase         Phase
	server        daemon.Server
	hash          string
	gen           uint64
	files         []daemon.File
	lastStats     *daemon.Stats
	request       *PlaybackRequest
	player        *player.Result
	failure       *Failure
	acquireCancel context.CancelFunc
	acquireDone   chan struct{}
	statsHandle   *stats.Handle
	closing       bool

	closeOnce sync.Once
	closed    chan struct{}

	events *hub
}

// Info is a point-in-time copy of a session's state.
type Info struct {
	ID          string           `json:"id"`
	Magnet      string           `json:"magnet"`
	InfoHash    string           `json:"info_hash"`
	Name        string           `json:"name,omitempty"`
	Server      daemon.Server    `json:"server"`
	Hash        string           `json:"hash,omitempty"`
	Phase       Phase            `json:"phase"`
	Files       []daemon.File    `json:"files,omitempty"`
	Stats       *daemon.Stats    `json:"stats,omitempty"`
	Playback    *PlaybackRequest `json:"playback,omitempty"`
	Player      *PlayerInfo      `json:"player,omitempty"`
	Failure     *Failure         `json:"failure,omitempty"`
	PlaylistURL string           `json:"playlist_url,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (s *Session) ID() string { return s.id }

// Magnet returns the magnet link the session was opened with.
func (s *Session) Magnet() string { return s.magnet }

// InfoHash returns the btih parsed from the magnet link.
func (s *Session) InfoHash() string { return s.infoHash }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}

// Hash returns the daemon-assigned hash, empty until the daemon accepted the torrent.
func (s *Session) Hash() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hash
}

func (s *Session) Server() daemon.Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.server
}

// Files returns the playable files once the torrent is ready.
func (s *Session) Files() []daemon.File {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.files)
}

// Request returns the last prepared playback request, or nil.
func (s *Session) Request() *PlaybackRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.request
}

// PlaylistURL returns the daemon playlist link for the current hash.
func (s *Session) PlaylistURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hash == "" {
		return "", false
	}

	return daemon.PlaylistURL(s.server.BaseURL, s.hash), true
}

func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:        s.id,
		Magnet:    s.magnet,
		InfoHash:  s.infoHash,
		Name:      s.name,
		Server:    s.server,
		Hash:      s.hash,
		Phase:     s.phase,
		Files:     slices.Clone(s.files),
		Playback:  s.request,
		CreatedAt: s.createdAt,
	}

	if s.lastStats != nil {
		st := *s.lastStats
		info.Stats = &st
	}

	if s.failure != nil {
		f := *s.failure
		info.Failure = &f
	}

	if s.player != nil {
		info.Player = &PlayerInfo{PID: s.player.PID, Executable: s.player.Executable}
	}

	if s.hash != "" {
		info.PlaylistURL = daemon.PlaylistURL(s.server.BaseURL, s.hash)
	}

	return info
}

// Subscribe returns the session's events, starting with the retained backlog. The
// channel is closed when the session closes or cancel is called.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// History returns the retained backlog of events.
func (s *Session) History() []Event {
	return s.events.history()
}

// Done is closed once Close has finished tearing the session down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// RememberedSelection returns the file ids stored for the current hash that are
// still part of the playable list.
func (s *Session) RememberedSelection(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	hash := s.hash
	files := slices.Clone(s.files)
	s.mu.Unlock()

	if s.env.prefs == nil || hash == "" || len(files) == 0 {
		return nil, nil
	}

	stored, err := s.env.prefs.FileSelection(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load file selection: %w", err)
	}

	ids := make([]int, 0, len(stored))

	for _, id := range stored {
		if slices.ContainsFunc(files, func(f daemon.File) bool { return f.ID == id }) {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// SelectServer switches the daemon while the session waits for readiness, or
// retries on another daemon after a failure. The running poll is cancelled and
// has exited before the torrent is submitted again.
func (s *Session) SelectServer(server daemon.Server) error {
	server.BaseURL = daemon.NormalizeBaseURL(server.BaseURL)
	if server.BaseURL == "" {
		return ErrInvalidServer
	}

	s.mu.Lock()

	if s.closing {
		s.mu.Unlock()

		return ErrClosed
	}

	if !s.phase.in(PhaseAwaitingReady, PhaseCancelled) {
		phase := s.phase
		s.mu.Unlock()

		return &TransitionError{Operation: "select server", Phase: phase}
	}

	s.gen++
	gen := s.gen
	cancel, done := s.acquireCancel, s.acquireDone

	s.server = server
	s.hash = ""
	s.files = nil
	s.lastStats = nil
	s.request = nil
	s.failure = nil

	s.emitLocked(Event{
		Kind:    EventProgress,
		Server:  server.BaseURL,
		Message: "Switching to server " + server.BaseURL,
	})
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return ErrClosed
	}

	if s.gen != gen {
		// A later SelectServer or Cancel took over.
		return nil
	}

	s.startAcquireLocked()

	return nil
}

// SelectFiles builds the playback request for the chosen file ids, in the given
// order. Duplicate ids are ignored.
func (s *Session) SelectFiles(ctx context.Context, ids []int) (*PlaybackRequest, error) {
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}

	s.mu.Lock()

	if s.closing {
		s.mu.Unlock()

		return nil, ErrClosed
	}

	if !s.phase.in(PhaseAwaitingSelection, PhasePreparingURLs, PhasePlayerLaunched, PhaseStreaming) {
		phase := s.phase
		s.mu.Unlock()

		return nil, &TransitionError{Operation: "select files", Phase: phase}
	}

	selected := make([]daemon.File, 0, len(ids))

	for _, id := range ids {
		idx := slices.IndexFunc(s.files, func(f daemon.File) bool { return f.ID == id })
		if idx < 0 {
			s.mu.Unlock()

			return nil, fmt.Errorf("%w: %d", ErrUnknownFile, id)
		}

		if slices.ContainsFunc(selected, func(f daemon.File) bool { return f.ID == id }) {
			continue
		}

		selected = append(selected, s.files[idx])
	}

	req := newPlaybackRequest(s.server.BaseURL, s.hash, selected)
	s.request = req

	s.emitLocked(Event{
		Kind:    EventPlaybackPrepared,
		Hash:    s.hash,
		Files:   req.Files(),
		URLs:    req.URLs(),
		Message: fmt.Sprintf("Prepared %d stream URLs", len(selected)),
	})

	if s.phase == PhaseAwaitingSelection {
		s.setPhaseLocked(PhasePreparingURLs)
	}

	hash, serverID := s.hash, s.server.ID
	s.mu.Unlock()

	if s.env.prefs != nil {
		if err := s.env.prefs.SaveFileSelection(ctx, hash, serverID, req.FileIDs()); err != nil {
			logctx.LoggerFromContext(ctx).WarnContext(s.logContext(ctx), "failed to remember file selection", "err", err)
		}
	}

	return req, nil
}

// Launch starts the player on the prepared request and (re)starts the stats stream.
// An empty executable falls back to the remembered player, then to the configured
// default. A failed launch is reported but leaves the session where it was.
func (s *Session) Launch(ctx context.Context, executable string) (*player.Result, error) {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	ctx = s.logContext(ctx)
	logger := logctx.LoggerFromContext(ctx)

	s.mu.Lock()

	if s.closing {
		s.mu.Unlock()

		return nil, ErrClosed
	}

	if !s.phase.in(PhasePreparingURLs, PhasePlayerLaunched, PhaseStreaming) || s.request == nil {
		phase := s.phase
		s.mu.Unlock()

		return nil, &TransitionError{Operation: "launch player", Phase: phase}
	}

	req, gen, server, hash := s.request, s.gen, s.server, s.hash
	s.mu.Unlock()

	executable = s.resolvePlayer(ctx, executable)

	result, err := s.env.launcher.Launch(ctx, executable, req.URLs(), s.onPlayerEvent)
	if err != nil {
		logger.WarnContext(ctx, "player launch failed", "executable", executable, "err", err)

		f := newFailure(err)
		f.Kind = FailureLaunch

		s.mu.Lock()
		s.emitLocked(Event{Kind: EventFailed, Hash: hash, Failure: f, Message: err.Error()})
		s.mu.Unlock()

		return nil, err
	}

	if s.env.prefs != nil {
		if err := s.env.prefs.SavePlayerPath(ctx, executable); err != nil {
			logger.WarnContext(ctx, "failed to remember player path", "err", err)
		}
	}

	s.mu.Lock()

	if s.closing || s.gen != gen {
		s.mu.Unlock()

		return result, nil
	}

	s.player = result
	s.setPhaseLocked(PhasePlayerLaunched)
	s.emitLocked(Event{
		Kind:    EventPlayerLaunched,
		Hash:    hash,
		URLs:    req.URLs(),
		Player:  &PlayerInfo{PID: result.PID, Executable: result.Executable},
		Message: fmt.Sprintf("Player started (pid %d)", result.PID),
	})

	previous := s.statsHandle
	s.statsHandle = nil
	s.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing || s.gen != gen {
		return result, nil
	}

	s.statsHandle = s.env.streamer.Start(s.ctx, server.BaseURL, hash, func(snap stats.Snapshot) {
		s.onStats(gen, snap)
	})
	s.setPhaseLocked(PhaseStreaming)

	return result, nil
}

// Cancel stops whatever the session is doing and moves it to Cancelled. The
// session stays registered; SelectServer can restart it.
func (s *Session) Cancel() error {
	s.mu.Lock()

	if s.closing {
		s.mu.Unlock()

		return ErrClosed
	}

	if s.phase == PhaseCancelled {
		s.mu.Unlock()

		return nil
	}

	s.gen++
	cancel, done, handle := s.acquireCancel, s.acquireDone, s.statsHandle
	s.statsHandle = nil

	s.failure = &Failure{Kind: FailureCancelled, Message: "cancelled"}
	s.emitLocked(Event{Kind: EventFailed, Hash: s.hash, Failure: &Failure{Kind: FailureCancelled, Message: "cancelled"}, Message: "cancelled"})
	s.setPhaseLocked(PhaseCancelled)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		<-done
	}

	if handle != nil {
		handle.Stop()
	}

	return nil
}

// Close tears the session down from any phase: the poll and the stats stream are
// stopped and have exited when Close returns. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.gen++
		done, handle := s.acquireDone, s.statsHandle
		s.statsHandle = nil

		outcome := "closed"
		if s.failure != nil {
			outcome = string(s.failure.Kind)
		}
		s.mu.Unlock()

		s.cancel()

		if done != nil {
			<-done
		}

		if handle != nil {
			handle.Stop()
		}

		s.mu.Lock()
		s.setPhaseLocked(PhaseClosed)
		s.emitLocked(Event{Kind: EventClosed, Hash: s.hash, Message: "Session closed"})
		s.mu.Unlock()

		s.events.close()
		s.env.telemetry.RecordSessionClosed(outcome)

		logctx.LoggerFromContext(s.ctx).InfoContext(s.ctx, "session closed", "outcome", outcome)

		close(s.closed)
	})

	<-s.closed
}

// startAcquireLocked submits the magnet to the current server in a new goroutine
// bound to the current generation. Callers hold s.mu. A closing session never
// starts work, since Close has already waited for the last acquire goroutine.
func (s *Session) startAcquireLocked() {
	if s.closing {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})

	s.acquireCancel = cancel
	s.acquireDone = done

	gen, server := s.gen, s.server

	s.setPhaseLocked(PhaseSubmitting)
	s.emitLocked(Event{
		Kind:    EventProgress,
		Server:  server.BaseURL,
		Message: "Adding torrent to server " + server.BaseURL,
	})

	go func() {
		defer close(done)
		defer cancel()

		s.acquire(ctx, gen, server)
	}()
}

func (s *Session) acquire(ctx context.Context, gen uint64, server daemon.Server) {
	logger := logctx.LoggerFromContext(ctx).With("server", server.BaseURL)

	hash, err := s.env.client.AddTorrent(ctx, server.BaseURL, s.magnet)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("add torrent: %w", ctxErr)
		}

		logger.WarnContext(ctx, "failed to add torrent", "err", err)
		s.fail(gen, err)

		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()

		return
	}

	s.hash = hash
	s.emitLocked(Event{
		Kind:    EventTorrentAdded,
		Hash:    hash,
		Server:  server.BaseURL,
		Message: "Torrent added, waiting for metadata",
	})
	s.setPhaseLocked(PhaseAwaitingReady)
	s.mu.Unlock()

	logger.InfoContext(ctx, "torrent added", "hash", hash)

	p := poller.New(s.env.client,
		poller.WithInterval(s.env.pollInterval),
		poller.WithMaxAttempts(s.env.pollMaxAttempts),
		poller.WithTelemetry(s.env.telemetry),
		poller.WithOnAttempt(func(_ context.Context, a poller.Attempt) {
			s.onAttempt(gen, a)
		}),
	)

	status, err := p.PollUntilReady(ctx, server.BaseURL, hash)
	if err != nil {
		logger.WarnContext(ctx, "torrent did not become ready", "hash", hash, "err", err)
		s.fail(gen, err)

		return
	}

	playable := media.Classify(status.Files)
	if len(playable) == 0 {
		err := fmt.Errorf("%w: %d files listed", ErrNoPlayableFiles, len(status.Files))
		logger.WarnContext(ctx, "no playable files", "hash", hash, "files", len(status.Files))
		s.fail(gen, err)

		return
	}

	var total int64
	for _, f := range playable {
		total += f.Length
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return
	}

	s.files = playable

	var snapshot *daemon.Stats
	if status.Stats != nil {
		st := *status.Stats
		s.lastStats = &st
		snapshot = &st
	}

	s.setPhaseLocked(PhaseFilesAvailable)
	s.emitLocked(Event{
		Kind:    EventFilesAvailable,
		Hash:    hash,
		Files:   slices.Clone(playable),
		Stats:   snapshot,
		Message: fmt.Sprintf("%d playable files (%s)", len(playable), humanize.Bytes(uint64(max(total, 0)))),
	})
	s.setPhaseLocked(PhaseAwaitingSelection)

	logger.InfoContext(ctx, "torrent ready", "hash", hash, "playable", len(playable), "listed", len(status.Files))
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.phase.Terminal() {
		return
	}

	f := newFailure(err)
	s.failure = f

	reported := *f
	s.emitLocked(Event{Kind: EventFailed, Hash: s.hash, Failure: &reported, Message: err.Error()})
	s.setPhaseLocked(PhaseCancelled)
}

func (s *Session) onAttempt(gen uint64, a poller.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return
	}

	info := &AttemptInfo{Number: a.Number, Max: a.Max, Stat: a.Stat}
	msg := fmt.Sprintf("Waiting for torrent (%d/%d)", a.Number, a.Max)

	if a.Err != nil {
		info.Error = a.Err.Error()
		msg = fmt.Sprintf("Status request failed (%d/%d): %v", a.Number, a.Max, a.Err)
	}

	s.emitLocked(Event{Kind: EventAttempt, Hash: s.hash, Attempt: info, Message: msg})
}

func (s *Session) onStats(gen uint64, snap stats.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.phase != PhaseStreaming || s.hash != snap.Hash {
		return
	}

	st := snap.Stats
	s.lastStats = &st

	reported := st
	s.emitLocked(Event{Kind: EventStats, Hash: snap.Hash, Stats: &reported, At: snap.At})
}

func (s *Session) onPlayerEvent(e player.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return
	}

	info := &PlayerInfo{PID: e.PID, Line: e.Line}
	msg := e.Line

	if e.Kind == player.EventExit {
		code := e.ExitCode
		info.ExitCode = &code
		msg = fmt.Sprintf("Player exited with code %d", code)
	}

	s.emitLocked(Event{Kind: EventPlayerOutput, Hash: s.hash, Player: info, Message: msg})
}

func (s *Session) resolvePlayer(ctx context.Context, executable string) string {
	if strings.TrimSpace(executable) != "" {
		return executable
	}

	if s.env.prefs != nil {
		stored, err := s.env.prefs.PlayerPath(ctx)
		if err != nil {
			logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to load remembered player path", "err", err)
		} else if stored != "" {
			return stored
		}
	}

	return s.env.defaultPlayer
}

// logContext tags ctx with the session id for log correlation.
func (s *Session) logContext(ctx context.Context) context.Context {
	return logctx.WithSessionID(ctx, s.id)
}

// emitLocked publishes e stamped with the session id and current phase. Callers
// hold s.mu so events leave in the order the state changed.
func (s *Session) emitLocked(e Event) {
	e.SessionID = s.id
	if e.Phase == "" {
		e.Phase = s.phase
	}

	s.events.publish(e)
}

func (s *Session) setPhaseLocked(p Phase) {
	if s.phase == p {
		return
	}

	prev := s.phase
	s.phase = p

	s.emitLocked(Event{Kind: EventPhaseChanged, Message: string(prev) + " -> " + string(p)})
}
