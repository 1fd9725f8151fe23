package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reyohoho/torrent_player/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Echo(t *testing.T) {
	var rec recordedRequest

	ts := newDaemon(t, http.StatusOK, "MatriX.135\n", &rec)

	version, err := daemon.NewClient("u", "p").Echo(context.Background(), ts.URL)
	require.NoError(t, err)

	assert.Equal(t, "MatriX.135", version)
	assert.Equal(t, http.MethodGet, rec.Method)
	assert.Equal(t, "/echo", rec.Path)
	assert.True(t, rec.HasAuth)
}

func TestClient_EchoUnauthorized(t *testing.T) {
	ts := newDaemon(t, http.StatusUnauthorized, "", nil)

	_, err := daemon.NewClient("u", "bad").Echo(context.Background(), ts.URL)

	var authErr *daemon.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "echo", authErr.Operation)
}

type scriptedPinger struct {
	delays   map[string]time.Duration
	failing  map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *scriptedPinger) Echo(ctx context.Context, baseURL string) (string, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	time.Sleep(p.delays[baseURL])

	if p.failing[baseURL] {
		return "", errors.New("connection refused")
	}

	return "1.0", nil
}

func TestProbe(t *testing.T) {
	servers := []daemon.Server{
		daemon.NewServer("1", "http://slow", ""),
		daemon.NewServer("2", "http://down", ""),
		daemon.NewServer("3", "http://fast", ""),
	}

	p := &scriptedPinger{
		delays:  map[string]time.Duration{"http://slow/": 40 * time.Millisecond, "http://fast/": time.Millisecond},
		failing: map[string]bool{"http://down/": true},
	}

	results := daemon.Probe(context.Background(), p, servers, 2)
	require.Len(t, results, 3)

	assert.Equal(t, "1", results[0].Server.ID)
	assert.True(t, results[0].Online)
	assert.Equal(t, "1.0", results[0].Version)

	assert.False(t, results[1].Online)
	assert.Equal(t, "connection refused", results[1].Error)

	assert.True(t, results[2].Online)
	assert.LessOrEqual(t, p.peak.Load(), int32(2))

	fastest, ok := daemon.Fastest(results)
	require.True(t, ok)
	assert.Equal(t, "3", fastest.ID)
}

func TestFastest_NoneOnline(t *testing.T) {
	_, ok := daemon.Fastest([]daemon.Health{{Online: false}})
	assert.False(t, ok)
}
