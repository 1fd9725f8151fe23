package daemon

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	userAgent      = "TorrentPlayer/1.0"
	defaultTimeout = 30 * time.Second
)

// uaTransport sets a User-Agent on every request that does not carry one already.
type uaTransport struct {
	base http.RoundTripper
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}

	return t.base.RoundTrip(req)
}

// NewHTTPClient builds the client used for daemon API calls. Requests are traced
// through otelhttp so daemon latency shows up next to the session spans.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(&uaTransport{
			base: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}),
	}
}
