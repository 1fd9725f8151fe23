package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/reyohoho/torrent_player/internal/logctx"
)

const (
	actionAdd  = "add"
	actionGet  = "get"
	actionEcho = "echo"

	// maxErrorBody caps how much of a non-JSON body is read.
	maxErrorBody = 4 << 10
)

// Client implements API against the daemon's POST /torrents endpoint.
type Client struct {
	Username   string
	Password   string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(username, password string, opts ...Option) *Client {
	client := &Client{
		Username:   username,
		Password:   password,
		httpClient: NewHTTPClient(defaultTimeout),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Ensure Client implements API and Pinger
var (
	_ API    = (*Client)(nil)
	_ Pinger = (*Client)(nil)
)

type torrentsRequest struct {
	Action string `json:"action"`
	Link   string `json:"link,omitempty"`
	Hash   string `json:"hash,omitempty"`
}

type addResponse struct {
	Hash string `json:"hash"`
}

// statusResponse keeps counters as pointers so that a missing stats block can be told
// apart from a block full of zeroes.
type statusResponse struct {
	Stat                int        `json:"stat"`
	TotalPeers          *int       `json:"total_peers"`
	ActivePeers         *int       `json:"active_peers"`
	PendingPeers        *int       `json:"pending_peers"`
	DownloadSpeed       *float64   `json:"download_speed"`
	UploadSpeed         *float64   `json:"upload_speed"`
	TorrentSize         *int64     `json:"torrent_size"`
	ClientDownloadSpeed *float64   `json:"client_download_speed"`
	FileStats           []fileStat `json:"file_stats"`
}

type fileStat struct {
	ID     int    `json:"id"`
	Path   string `json:"path"`
	Length int64  `json:"length"`
}

// AddTorrent submits a magnet link and returns the hash the daemon assigned to it.
func (c *Client) AddTorrent(ctx context.Context, baseURL, magnetURI string) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("action", actionAdd)

	var resp addResponse
	if err := c.do(ctx, baseURL, torrentsRequest{Action: actionAdd, Link: magnetURI}, &resp); err != nil {
		return "", err
	}

	hash := strings.TrimSpace(resp.Hash)
	if hash == "" {
		return "", &RequestError{
			Operation:  actionAdd,
			StatusCode: http.StatusOK,
			Message:    "response carries no hash",
		}
	}

	logger.DebugContext(ctx, "torrent accepted by daemon", "hash", hash)

	return hash, nil
}

// GetStatus fetches the readiness snapshot of a previously added torrent.
func (c *Client) GetStatus(ctx context.Context, baseURL, hash string) (*Status, error) {
	var resp statusResponse
	if err := c.do(ctx, baseURL, torrentsRequest{Action: actionGet, Hash: hash}, &resp); err != nil {
		return nil, err
	}

	return resp.toStatus(), nil
}

// Echo asks the daemon for its version string. It is the cheapest authenticated
// request the daemon answers and serves as a health probe.
func (c *Client) Echo(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NormalizeBaseURL(baseURL)+"echo", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", actionEcho, err)
	}

	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Operation: actionEcho, Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, actionEcho); err != nil {
		return "", err
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", &TransportError{Operation: actionEcho, Err: err}
	}

	return strings.TrimSpace(string(b)), nil
}

func (r *statusResponse) toStatus() *Status {
	status := &Status{
		Stat:  r.Stat,
		Files: make([]File, 0, len(r.FileStats)),
	}

	for _, f := range r.FileStats {
		status.Files = append(status.Files, File{ID: f.ID, Path: f.Path, Length: f.Length})
	}

	if r.TotalPeers == nil && r.ActivePeers == nil && r.PendingPeers == nil &&
		r.DownloadSpeed == nil && r.UploadSpeed == nil && r.TorrentSize == nil &&
		r.ClientDownloadSpeed == nil {
		return status
	}

	status.Stats = &Stats{
		TotalPeers:          deref(r.TotalPeers),
		ActivePeers:         deref(r.ActivePeers),
		PendingPeers:        deref(r.PendingPeers),
		DownloadSpeed:       deref(r.DownloadSpeed),
		UploadSpeed:         deref(r.UploadSpeed),
		TorrentSize:         deref(r.TorrentSize),
		ClientDownloadSpeed: deref(r.ClientDownloadSpeed),
	}

	return status
}

func deref[T int | int64 | float64](v *T) T {
	if v == nil {
		return 0
	}

	return *v
}

// do posts one action to {baseURL}torrents and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, baseURL string, payload torrentsRequest, out any) error {
	logger := logctx.LoggerFromContext(ctx).With("action", payload.Action)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", payload.Action, err)
	}

	url := NormalizeBaseURL(baseURL) + "torrents"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", payload.Action, err)
	}

	req.Header.Set("Content-Type", "application/json")

	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Operation: payload.Action, Err: err}
	}
	defer resp.Body.Close()

	logger.DebugContext(ctx, "daemon responded", "url", url, "status", resp.StatusCode)

	if err := checkStatus(resp, payload.Action); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{
			Operation:  payload.Action,
			StatusCode: resp.StatusCode,
			Message:    "malformed response body",
			Err:        err,
		}
	}

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Username != "" || c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
}

// checkStatus maps 401 to AuthError and any other non-2xx status to RequestError.
// The body of a failed response is drained.
func checkStatus(resp *http.Response, operation string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Operation: operation}
	}

	return &RequestError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    statusText(resp),
	}
}

// statusText returns the reason phrase the daemon sent, falling back to the standard one.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}

	return text
}
