package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/gorilla/websocket"
	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/reyohoho/torrent_player/internal/player"
	"github.com/reyohoho/torrent_player/internal/session"
	"github.com/reyohoho/torrent_player/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMagnet = "magnet:?xt=urn:btih:c9e15763f722f23e98a29decdfae341b98d53056&dn=Movie"

var testServers = []daemon.Server{
	daemon.NewServer("1", "http://ts-a:8090", "home"),
	daemon.NewServer("2", "http://ts-b:8090", "vps"),
}

type readyDaemon struct {
	mu     sync.Mutex
	magnet string
}

func (d *readyDaemon) AddTorrent(_ context.Context, _, magnetURI string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.magnet = magnetURI

	return "abc123", nil
}

func (d *readyDaemon) GetStatus(context.Context, string, string) (*daemon.Status, error) {
	return &daemon.Status{
		Stat:  daemon.StatReady,
		Stats: &daemon.Stats{ActivePeers: 3},
		Files: []daemon.File{
			{ID: 1, Path: "Movie/Movie.mkv", Length: 1 << 30},
			{ID: 2, Path: "Movie/Movie.srt", Length: 1 << 10},
		},
	}, nil
}

func (d *readyDaemon) Echo(_ context.Context, baseURL string) (string, error) {
	if baseURL == "http://ts-b:8090/" {
		return "", &daemon.TransportError{Operation: "echo", Err: errors.New("connection refused")}
	}

	return "MatriX.135", nil
}

type stubLauncher struct{}

func (stubLauncher) Launch(_ context.Context, executable string, _ []string, _ func(player.Event)) (*player.Result, error) {
	if executable == "" {
		return nil, player.ErrNoExecutable
	}

	return &player.Result{PID: 99, Executable: executable, StartedAt: time.Now()}, nil
}

type testEnv struct {
	server  *httptest.Server
	manager *session.Manager
	daemon  *readyDaemon
}

func newTestEnv(t *testing.T, username, password string) *testEnv {
	t.Helper()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	prefs := sqlite.NewInstrumentedPreferenceRepository(db, nil)

	d := &readyDaemon{}
	m := session.NewManager(context.Background(), d, stubLauncher{},
		session.WithPreferences(prefs),
		session.WithPollInterval(time.Millisecond),
		session.WithStatsInterval(10*time.Millisecond),
	)

	h := NewSessionHandler(username, password, m, testServers, prefs, d)
	srv := httptest.NewServer(h.Routes())

	t.Cleanup(func() {
		srv.Close()
		m.Shutdown()
	})

	return &testEnv{server: srv, manager: m, daemon: d}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, r)
	require.NoError(t, err)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))

	return v
}

func (e *testEnv) openReady(t *testing.T) session.Info {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/sessions", openRequest{Magnet: testMagnet})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	info := decodeBody[session.Info](t, resp)
	assert.Equal(t, "/sessions/"+info.ID, resp.Header.Get("Location"))

	require.Eventually(t, func() bool {
		s, err := e.manager.Get(info.ID)
		return err == nil && s.Phase() == session.PhaseAwaitingSelection
	}, 2*time.Second, time.Millisecond)

	return info
}

func TestSessionHandler_Playback(t *testing.T) {
	env := newTestEnv(t, "", "")
	info := env.openReady(t)

	resp := env.do(t, http.MethodGet, "/sessions/"+info.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[session.Info](t, resp)
	assert.Equal(t, session.PhaseAwaitingSelection, got.Phase)
	assert.Equal(t, "http://ts-a:8090/", got.Server.BaseURL)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "Movie/Movie.mkv", got.Files[0].Path)

	resp = env.do(t, http.MethodPost, "/sessions/"+info.ID+"/selection", selectionRequest{FileIDs: []int{1}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	playback := decodeBody[struct {
		URLs []string `json:"urls"`
	}](t, resp)
	assert.Equal(t, []string{"http://ts-a:8090/stream/Movie/Movie.mkv?link=abc123&index=1&play"}, playback.URLs)

	resp = env.do(t, http.MethodGet, "/sessions/"+info.ID+"/selection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int{1}, decodeBody[selectionRequest](t, resp).FileIDs)

	resp = env.do(t, http.MethodPost, "/sessions/"+info.ID+"/launch", launchRequest{Player: "mpv"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	launched := decodeBody[launchResponse](t, resp)
	assert.Equal(t, 99, launched.PID)
	assert.Equal(t, "mpv", launched.Executable)
	assert.Len(t, launched.URLs, 1)

	resp = env.do(t, http.MethodGet, "/sessions/"+info.ID+"/playlist", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://ts-a:8090/playlist?hash=abc123", resp.Header.Get("Location"))

	resp = env.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]session.Info](t, resp), 1)

	resp = env.do(t, http.MethodDelete, "/sessions/"+info.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/sessions/"+info.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionHandler_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, "", "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"bad magnet", http.MethodPost, "/sessions", openRequest{Magnet: "http://example.com/x.torrent"}, http.StatusBadRequest},
		{"nothing to open", http.MethodPost, "/sessions", openRequest{}, http.StatusBadRequest},
		{"unknown server", http.MethodPost, "/sessions", openRequest{Magnet: testMagnet, ServerID: "9"}, http.StatusNotFound},
		{"bad metainfo", http.MethodPost, "/sessions", openRequest{MetaInfo: "!!"}, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/sessions/nope", nil, http.StatusNotFound},
		{"unknown default server", http.MethodPut, "/servers/selected", serverRequest{ServerID: "9"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decodeBody[errorResponse](t, resp).Error)
		})
	}
}

func TestSessionHandler_InvalidTransitions(t *testing.T) {
	env := newTestEnv(t, "", "")
	info := env.openReady(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+info.ID+"/launch", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/sessions/"+info.ID+"/server", serverRequest{ServerID: "2"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/sessions/"+info.ID+"/selection", selectionRequest{FileIDs: []int{2}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/sessions/"+info.ID+"/selection", selectionRequest{FileIDs: []int{1}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/sessions/"+info.ID+"/launch", launchRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "no player configured")
	assert.Equal(t, session.FailureLaunch, decodeBody[errorResponse](t, resp).Kind)

	resp = env.do(t, http.MethodPost, "/sessions/"+info.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, session.PhaseCancelled, decodeBody[session.Info](t, resp).Phase)

	resp = env.do(t, http.MethodPut, "/sessions/"+info.ID+"/server", serverRequest{ServerID: "2"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "2", decodeBody[session.Info](t, resp).Server.ID)
}

func TestSessionHandler_DefaultServer(t *testing.T) {
	env := newTestEnv(t, "", "")

	resp := env.do(t, http.MethodPut, "/servers/selected", serverRequest{ServerID: "2"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/servers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	servers := decodeBody[serversResponse](t, resp)
	assert.Equal(t, "2", servers.Selected)
	assert.Len(t, servers.Servers, 2)

	resp = env.do(t, http.MethodPost, "/sessions", openRequest{Magnet: testMagnet})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "http://ts-b:8090/", decodeBody[session.Info](t, resp).Server.BaseURL)
}

func TestSessionHandler_ServerHealth(t *testing.T) {
	env := newTestEnv(t, "", "")

	resp := env.do(t, http.MethodGet, "/servers/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeBody[[]daemon.Health](t, resp)
	require.Len(t, health, 2)
	assert.True(t, health[0].Online)
	assert.Equal(t, "MatriX.135", health[0].Version)
	assert.False(t, health[1].Online)
	assert.NotEmpty(t, health[1].Error)
}

func TestSessionHandler_OpenFromMetaInfo(t *testing.T) {
	env := newTestEnv(t, "", "")

	infoBytes, err := bencode.Marshal(metainfo.Info{
		Name:        "Movie.mkv",
		PieceLength: 16 << 10,
		Length:      1024,
		Pieces:      make([]byte, 20),
	})
	require.NoError(t, err)

	mi := metainfo.MetaInfo{InfoBytes: infoBytes}

	var buf bytes.Buffer
	require.NoError(t, mi.Write(&buf))

	resp := env.do(t, http.MethodPost, "/sessions", openRequest{
		MetaInfo: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Magnet:   "ignored",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	info := decodeBody[session.Info](t, resp)
	assert.Equal(t, mi.HashInfoBytes().HexString(), info.InfoHash)
	assert.Equal(t, "Movie.mkv", info.Name)
}

func TestSessionHandler_BasicAuth(t *testing.T) {
	env := newTestEnv(t, "admin", "secret")

	resp := env.do(t, http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/sessions", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "secret")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionHandler_Events(t *testing.T) {
	env := newTestEnv(t, "", "")
	info := env.openReady(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/sessions/" + info.ID + "/events"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	seen := map[session.EventKind]bool{}

	for !seen[session.EventFilesAvailable] {
		var e session.Event
		require.NoError(t, conn.ReadJSON(&e))
		assert.Equal(t, info.ID, e.SessionID)

		seen[e.Kind] = true
	}

	assert.True(t, seen[session.EventTorrentAdded])

	require.NoError(t, env.manager.Close(info.ID))

	for {
		var e session.Event
		if err := conn.ReadJSON(&e); err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
			assert.Equal(t, "session closed", closeErr.Text)

			break
		}
	}
}

func TestEventClient_CloseReason(t *testing.T) {
	serve := func(t *testing.T, sessionClosed, peerGone bool) error {
		t.Helper()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
			if err != nil {
				return
			}

			events := make(chan session.Event)
			close(events)

			closed := make(chan struct{})
			if sessionClosed {
				close(closed)
			}

			c := &eventClient{
				conn:   conn,
				events: events,
				cancel: func() {},
				logger: slog.Default(),
				closed: closed,
				gone:   make(chan struct{}),
			}

			if peerGone {
				close(c.gone)
			}

			c.writePump(r.Context())
		}))
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

		_, _, err = conn.ReadMessage()
		require.Error(t, err)

		return err
	}

	t.Run("session closed", func(t *testing.T) {
		err := serve(t, true, false)

		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
		assert.Equal(t, "session closed", closeErr.Text)
	})

	t.Run("peer left", func(t *testing.T) {
		err := serve(t, false, true)

		assert.False(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected close frame: %v", err)
	})
}
