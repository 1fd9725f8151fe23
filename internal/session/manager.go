package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/google/uuid"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/poller"
	"github.com/reyohoho/torrent_player/internal/stats"
	"github.com/reyohoho/torrent_player/internal/telemetry"
)

// Manager owns the open sessions and the wiring they share.
type Manager struct {
	env           *environment
	baseCtx       context.Context
	statsInterval time.Duration
	observer      func(Event)

	mu       sync.RWMutex
	sessions map[string]*Session
	shut     bool

	observers sync.WaitGroup
}

// Option customizes a Manager.
type Option func(*Manager)

func WithPreferences(p Preferences) Option {
	return func(m *Manager) {
		m.env.prefs = p
	}
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(m *Manager) {
		m.env.telemetry = t
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.env.pollInterval = d
	}
}

func WithPollMaxAttempts(n int) Option {
	return func(m *Manager) {
		m.env.pollMaxAttempts = n
	}
}

func WithStatsInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.statsInterval = d
	}
}

// WithDefaultPlayer sets the executable used when neither the caller nor the
// stored preferences name one.
func WithDefaultPlayer(path string) Option {
	return func(m *Manager) {
		m.env.defaultPlayer = path
	}
}

// WithBacklog sets how many events each session retains for late subscribers.
func WithBacklog(n int) Option {
	return func(m *Manager) {
		m.env.backlog = n
	}
}

// WithObserver registers fn to receive the events of every session, in order.
// fn runs on a dedicated goroutine per session with the same buffer as any
// subscriber: an observer that falls behind misses events, possibly including
// the final failed or closed one.
func WithObserver(fn func(Event)) Option {
	return func(m *Manager) {
		m.observer = fn
	}
}

// NewManager creates a Manager. Sessions inherit the logger of ctx but not its
// cancellation; call Shutdown to stop them.
func NewManager(ctx context.Context, client daemon.API, launcher Launcher, opts ...Option) *Manager {
	m := &Manager{
		env: &environment{
			client:          client,
			launcher:        launcher,
			pollInterval:    poller.DefaultInterval,
			pollMaxAttempts: poller.DefaultMaxAttempts,
			backlog:         defaultBacklog,
		},
		baseCtx:       context.WithoutCancel(ctx),
		statsInterval: stats.DefaultInterval,
		sessions:      make(map[string]*Session),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.env.streamer = stats.NewStreamer(client,
		stats.WithInterval(m.statsInterval),
		stats.WithTelemetry(m.env.telemetry),
	)

	return m
}

// Open validates the magnet link and starts a session that submits it to server.
func (m *Manager) Open(ctx context.Context, magnetURI string, server daemon.Server) (*Session, error) {
	magnetURI = strings.TrimSpace(magnetURI)

	magnet, err := metainfo.ParseMagnetUri(magnetURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMagnet, err)
	}

	server.BaseURL = daemon.NormalizeBaseURL(server.BaseURL)
	if server.BaseURL == "" {
		return nil, ErrInvalidServer
	}

	id := uuid.NewString()
	sctx, cancel := context.WithCancel(logctx.WithSessionID(m.baseCtx, id))

	s := &Session{
		id:        id,
		magnet:    magnetURI,
		infoHash:  magnet.InfoHash.HexString(),
		name:      magnet.DisplayName,
		createdAt: time.Now(),
		env:       m.env,
		ctx:       sctx,
		cancel:    cancel,
		phase:     PhaseIdle,
		server:    server,
		closed:    make(chan struct{}),
		events:    newHub(m.env.backlog),
	}

	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		cancel()

		return nil, ErrClosed
	}

	m.sessions[id] = s
	m.mu.Unlock()

	m.env.telemetry.RecordSessionOpened()

	if m.observer != nil {
		events, _ := s.Subscribe()

		m.observers.Add(1)

		go func() {
			defer m.observers.Done()

			for e := range events {
				m.observer(e)
			}
		}()
	}

	logctx.LoggerFromContext(ctx).InfoContext(logctx.WithSessionID(ctx, id), "session opened",
		"info_hash", s.infoHash,
		"server", server.BaseURL,
	)

	s.mu.Lock()
	s.startAcquireLocked()
	s.mu.Unlock()

	return s, nil
}

// Get returns the open session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return s, nil
}

// List returns the open sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))

	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Session) int {
		return a.createdAt.Compare(b.createdAt)
	})

	return out
}

// Close closes the session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.Close()

	return nil
}

// Shutdown closes every session and waits for observers to drain. Open fails
// afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shut = true
	open := make([]*Session, 0, len(m.sessions))

	for id, s := range m.sessions {
		open = append(open, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup

	for _, s := range open {
		wg.Add(1)

		go func() {
			defer wg.Done()
			s.Close()
		}()
	}

	wg.Wait()
	m.observers.Wait()
}
