package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type eventClient struct {
	conn   *websocket.Conn
	events <-chan session.Event
	cancel func()
	logger *slog.Logger

	// closed is the session's Done channel; gone is closed once readPump returns.
	closed <-chan struct{}
	gone   chan struct{}
}

// HandleEvents streams the session's events over a websocket, starting with the
// retained backlog. The stream ends when the session closes or the peer leaves.
func (h *SessionHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied to the client.
		logctx.LoggerFromContext(r.Context()).Debug("websocket upgrade failed", "err", err)

		return
	}

	events, cancel := s.Subscribe()

	c := &eventClient{
		conn:   conn,
		events: events,
		cancel: cancel,
		logger: logctx.LoggerFromContext(logctx.WithSessionID(r.Context(), s.ID())),
		closed: s.Done(),
		gone:   make(chan struct{}),
	}

	c.logger.Debug("ws client connected")

	go c.readPump()
	c.writePump(r.Context())

	c.logger.Debug("ws client disconnected")
}

func (c *eventClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.events:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				c.finish(ctx)

				return
			}

			if err := c.conn.WriteJSON(e); err != nil {
				c.logger.Debug("ws write failed", "err", err)

				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// finish runs once the subscription has ended. The hub closes the subscription
// before the session's Done channel, so wait for whichever side ended it. A peer
// that went away gets no close frame.
func (c *eventClient) finish(ctx context.Context) {
	select {
	case <-c.closed:
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
	case <-c.gone:
	case <-ctx.Done():
	}
}

// readPump only watches for pongs and the peer going away; it ends the
// subscription so writePump unwinds.
func (c *eventClient) readPump() {
	defer func() {
		close(c.gone)
		c.cancel()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
