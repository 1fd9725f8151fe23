package session

import (
	"sync"
	"time"

	"github.com/reyohoho/torrent_player/internal/daemon"
)

// EventKind names what an Event reports.
type EventKind string

const (
	EventProgress         EventKind = "progress"
	EventTorrentAdded     EventKind = "torrent_added"
	EventAttempt          EventKind = "poll_attempt"
	EventFilesAvailable   EventKind = "files_available"
	EventStats            EventKind = "stats"
	EventPlaybackPrepared EventKind = "playback_prepared"
	EventPlayerLaunched   EventKind = "player_launched"
	EventPlayerOutput     EventKind = "player_output"
	EventFailed           EventKind = "failed"
	EventPhaseChanged     EventKind = "phase_changed"
	EventClosed           EventKind = "closed"
)

// Event is a notification for the presentation layer. Only the fields relevant
// to Kind are set.
type Event struct {
	Seq       uint64    `json:"seq"`
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Phase     Phase     `json:"phase"`
	At        time.Time `json:"at"`

	Message string        `json:"message,omitempty"`
	Hash    string        `json:"hash,omitempty"`
	Server  string        `json:"server,omitempty"`
	Attempt *AttemptInfo  `json:"attempt,omitempty"`
	Files   []daemon.File `json:"files,omitempty"`
	Stats   *daemon.Stats `json:"stats,omitempty"`
	URLs    []string      `json:"urls,omitempty"`
	Player  *PlayerInfo   `json:"player,omitempty"`
	Failure *Failure      `json:"failure,omitempty"`
}

// AttemptInfo describes one readiness poll attempt.
type AttemptInfo struct {
	Number int    `json:"number"`
	Max    int    `json:"max"`
	Stat   int    `json:"stat"`
	Error  string `json:"error,omitempty"`
}

// PlayerInfo describes the player process an event refers to.
type PlayerInfo struct {
	PID        int    `json:"pid"`
	Executable string `json:"executable,omitempty"`
	Line       string `json:"line,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
}

const (
	defaultBacklog   = 128
	subscriberBuffer = 256
)

// hub fans events out to subscribers without ever blocking the publisher. A
// subscriber that falls behind misses events rather than stalling the session.
type hub struct {
	mu      sync.Mutex
	seq     uint64
	subs    map[int]chan Event
	nextID  int
	backlog []Event
	limit   int
	closed  bool
}

func newHub(limit int) *hub {
	if limit <= 0 {
		limit = defaultBacklog
	}

	return &hub{
		subs:  make(map[int]chan Event),
		limit: limit,
	}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.seq++
	e.Seq = h.seq

	if e.At.IsZero() {
		e.At = time.Now()
	}

	h.backlog = append(h.backlog, e)
	if len(h.backlog) > h.limit {
		h.backlog = h.backlog[len(h.backlog)-h.limit:]
	}

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full, skip this update.
		}
	}
}

// subscribe returns a channel that first replays the backlog and then receives
// live events. The channel is closed by cancel or when the hub closes.
func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer+len(h.backlog))
	for _, e := range h.backlog {
		ch <- e
	}

	if h.closed {
		close(ch)

		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}

	return ch, cancel
}

func (h *hub) history() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, len(h.backlog))
	copy(out, h.backlog)

	return out
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
