package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/logctx"
	"github.com/reyohoho/torrent_player/internal/session"
)

var (
	errBadRequest    = errors.New("invalid request body")
	errUnknownServer = errors.New("unknown server")
	errNotAdded      = errors.New("torrent has not been added yet")
	errNoProbe       = errors.New("server probing is not available")
)

type openRequest struct {
	Magnet   string `json:"magnet"`
	MetaInfo string `json:"metainfo"` // base64 .torrent content, wins over Magnet
	ServerID string `json:"server_id"`
}

type serverRequest struct {
	ServerID string `json:"server_id"`
}

type selectionRequest struct {
	FileIDs []int `json:"file_ids"`
}

type launchRequest struct {
	Player string `json:"player"`
}

type launchResponse struct {
	PID        int       `json:"pid"`
	Executable string    `json:"executable"`
	StartedAt  time.Time `json:"started_at"`
	URLs       []string  `json:"urls"`
}

type serversResponse struct {
	Servers  []daemon.Server `json:"servers"`
	Selected string          `json:"selected,omitempty"`
}

// decode reads a JSON body. An empty body leaves v untouched when optional is set.
func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	return nil
}

func (h *SessionHandler) session(r *http.Request) (*session.Session, error) {
	return h.manager.Get(chi.URLParam(r, "id"))
}

// HandleListServers lists the configured daemons and the remembered default.
func (h *SessionHandler) HandleListServers(w http.ResponseWriter, r *http.Request) {
	resp := serversResponse{Servers: h.servers}

	if h.prefs != nil {
		selected, err := h.prefs.SelectedServer(r.Context())
		if err != nil {
			writeError(w, r, fmt.Errorf("failed to load selected server: %w", err))

			return
		}

		resp.Selected = selected
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleServerHealth probes every configured daemon.
func (h *SessionHandler) HandleServerHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		writeError(w, r, errNoProbe)

		return
	}

	writeJSON(w, r, http.StatusOK, daemon.Probe(r.Context(), h.pinger, h.servers, daemon.DefaultProbeParallelism))
}

// HandleSelectDefaultServer remembers the daemon new sessions use by default.
func (h *SessionHandler) HandleSelectDefaultServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)

		return
	}

	if _, ok := h.server(req.ServerID); !ok {
		writeError(w, r, fmt.Errorf("%w: %q", errUnknownServer, req.ServerID))

		return
	}

	if h.prefs != nil {
		if err := h.prefs.SaveSelectedServer(r.Context(), req.ServerID); err != nil {
			writeError(w, r, fmt.Errorf("failed to save selected server: %w", err))

			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// resolveServer picks the requested daemon, then the remembered one, then the first.
func (h *SessionHandler) resolveServer(r *http.Request, id string) (daemon.Server, error) {
	if id != "" {
		s, ok := h.server(id)
		if !ok {
			return daemon.Server{}, fmt.Errorf("%w: %q", errUnknownServer, id)
		}

		return s, nil
	}

	if h.prefs != nil {
		selected, err := h.prefs.SelectedServer(r.Context())
		if err != nil {
			logctx.LoggerFromContext(r.Context()).Warn("failed to load selected server", "err", err)
		} else if s, ok := h.server(selected); ok {
			return s, nil
		}
	}

	if len(h.servers) == 0 {
		return daemon.Server{}, session.ErrInvalidServer
	}

	return h.servers[0], nil
}

// HandleOpen starts a session from a magnet link or uploaded .torrent content.
func (h *SessionHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context()).With("method", "handle_open")

	var req openRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)

		return
	}

	magnet := strings.TrimSpace(req.Magnet)

	if req.MetaInfo != "" {
		logger.Debug("processing open request", "torrent_type", "metainfo")

		var err error

		magnet, err = magnetFromMetaInfo(req.MetaInfo)
		if err != nil {
			writeError(w, r, err)

			return
		}
	} else if magnet == "" {
		writeError(w, r, fmt.Errorf("%w: either metainfo or magnet must be provided", errBadRequest))

		return
	}

	server, err := h.resolveServer(r, req.ServerID)
	if err != nil {
		writeError(w, r, err)

		return
	}

	s, err := h.manager.Open(r.Context(), magnet, server)
	if err != nil {
		writeError(w, r, err)

		return
	}

	w.Header().Set("Location", "/sessions/"+s.ID())
	writeJSON(w, r, http.StatusCreated, s.Snapshot())
}

func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()

	infos := make([]session.Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Snapshot())
	}

	writeJSON(w, r, http.StatusOK, infos)
}

func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, s.Snapshot())
}

// HandleClose tears the session down and forgets it.
func (h *SessionHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSelectServer switches the daemon of a waiting or failed session.
func (h *SessionHandler) HandleSelectServer(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	var req serverRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)

		return
	}

	server, ok := h.server(req.ServerID)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %q", errUnknownServer, req.ServerID))

		return
	}

	if err := s.SelectServer(server); err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusAccepted, s.Snapshot())
}

// HandleRememberedSelection returns the files picked last time for this torrent.
func (h *SessionHandler) HandleRememberedSelection(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	ids, err := s.RememberedSelection(r.Context())
	if err != nil {
		writeError(w, r, err)

		return
	}

	if ids == nil {
		ids = []int{}
	}

	writeJSON(w, r, http.StatusOK, selectionRequest{FileIDs: ids})
}

func (h *SessionHandler) HandleSelectFiles(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	var req selectionRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)

		return
	}

	playback, err := s.SelectFiles(r.Context(), req.FileIDs)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, playback)
}

// HandleLaunch starts the player. The body is optional; without a player path
// the remembered or configured one is used.
func (h *SessionHandler) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	var req launchRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, err)

		return
	}

	result, err := s.Launch(r.Context(), req.Player)
	if err != nil {
		writeError(w, r, err)

		return
	}

	var urls []string
	if playback := s.Request(); playback != nil {
		urls = playback.URLs()
	}

	writeJSON(w, r, http.StatusOK, launchResponse{
		PID:        result.PID,
		Executable: result.Executable,
		StartedAt:  result.StartedAt,
		URLs:       urls,
	})
}

func (h *SessionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	if err := s.Cancel(); err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, s.Snapshot())
}

// HandlePlaylist redirects to the daemon-generated playlist of the torrent.
func (h *SessionHandler) HandlePlaylist(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)

		return
	}

	playlist, ok := s.PlaylistURL()
	if !ok {
		writeError(w, r, errNotAdded)

		return
	}

	http.Redirect(w, r, playlist, http.StatusFound)
}
