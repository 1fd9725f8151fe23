package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/player"
	"github.com/reyohoho/torrent_player/internal/session"
	"github.com/reyohoho/torrent_player/internal/storage"
)

// SessionHandler exposes the session manager over HTTP.
type SessionHandler struct {
	username string
	password string
	manager  *session.Manager
	servers  []daemon.Server
	prefs    storage.PreferenceRepository
	pinger   daemon.Pinger
	upgrader websocket.Upgrader
}

// NewSessionHandler creates a new session handler. Basic auth is enforced only
// when username is set; prefs and pinger may be nil.
func NewSessionHandler(
	username, password string,
	manager *session.Manager,
	servers []daemon.Server,
	prefs storage.PreferenceRepository,
	pinger daemon.Pinger,
) *SessionHandler {
	return &SessionHandler{
		username: username,
		password: password,
		manager:  manager,
		servers:  servers,
		prefs:    prefs,
		pinger:   pinger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *SessionHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Get("/servers", h.HandleListServers)
	r.Get("/servers/health", h.HandleServerHealth)
	r.Put("/servers/selected", h.HandleSelectDefaultServer)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.HandleOpen)
		r.Get("/", h.HandleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleClose)
			r.Put("/server", h.HandleSelectServer)
			r.Get("/selection", h.HandleRememberedSelection)
			r.Post("/selection", h.HandleSelectFiles)
			r.Post("/launch", h.HandleLaunch)
			r.Post("/cancel", h.HandleCancel)
			r.Get("/playlist", h.HandlePlaylist)
			r.Get("/events", h.HandleEvents)
		})
	})

	return r
}

func (h *SessionHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="torrent_player"`)
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// server looks up a configured daemon by id.
func (h *SessionHandler) server(id string) (daemon.Server, bool) {
	for _, s := range h.servers {
		if s.ID == id {
			return s, true
		}
	}

	return daemon.Server{}, false
}

type errorResponse struct {
	Error string              `json:"error"`
	Kind  session.FailureKind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

// writeError maps orchestration errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)

	logger := logctx.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
	} else {
		logger.Debug("request rejected", "status", status, "err", err)
	}

	resp := errorResponse{Error: err.Error()}
	if kind := session.ClassifyError(err); kind != session.FailureInternal {
		resp.Kind = kind
	}

	writeJSON(w, r, status, resp)
}

func errorStatus(err error) int {
	var (
		invalidErr *InvalidContentError
		launchErr  *player.LaunchError
	)

	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, errUnknownServer):
		return http.StatusNotFound
	case errors.As(err, &invalidErr),
		errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrInvalidMagnet),
		errors.Is(err, session.ErrInvalidServer),
		errors.Is(err, session.ErrEmptySelection),
		errors.Is(err, session.ErrUnknownFile):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, errNotAdded):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, errNoProbe):
		return http.StatusNotImplemented
	case errors.As(err, &launchErr), errors.Is(err, player.ErrNoExecutable), errors.Is(err, player.ErrNoURLs):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
