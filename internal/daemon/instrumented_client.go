package daemon

import (
	"context"
	"errors"

	"github.com/reyohoho/torrent_player/internal/telemetry"
)

// InstrumentedClient wraps an API implementation with telemetry.
type InstrumentedClient struct {
	client     API
	telemetry  *telemetry.Telemetry
	clientType string
}

// NewInstrumentedClient creates a new instrumented daemon client.
func NewInstrumentedClient(client API, tel *telemetry.Telemetry, clientType string) *InstrumentedClient {
	return &InstrumentedClient{
		client:     client,
		telemetry:  tel,
		clientType: clientType,
	}
}

// AddTorrent submits a magnet link with telemetry.
func (c *InstrumentedClient) AddTorrent(ctx context.Context, baseURL, magnetURI string) (string, error) {
	var hash string

	var err error

	instrumentedErr := c.telemetry.InstrumentClientOperation(ctx, c.clientType, "add_torrent", func(ctx context.Context) error {
		hash, err = c.client.AddTorrent(ctx, baseURL, magnetURI)

		return err
	})

	if instrumentedErr != nil {
		return "", instrumentedErr
	}

	return hash, nil
}

// GetStatus fetches a status snapshot with telemetry.
func (c *InstrumentedClient) GetStatus(ctx context.Context, baseURL, hash string) (*Status, error) {
	var result *Status

	var err error

	instrumentedErr := c.telemetry.InstrumentClientOperation(ctx, c.clientType, "get_status", func(ctx context.Context) error {
		result, err = c.client.GetStatus(ctx, baseURL, hash)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// Echo probes the daemon with telemetry. The wrapped client must implement Pinger.
func (c *InstrumentedClient) Echo(ctx context.Context, baseURL string) (string, error) {
	pinger, ok := c.client.(Pinger)
	if !ok {
		return "", errors.New("daemon client cannot probe servers")
	}

	var version string

	err := c.telemetry.InstrumentClientOperation(ctx, c.clientType, "echo", func(ctx context.Context) error {
		var err error
		version, err = pinger.Echo(ctx, baseURL)

		return err
	})

	return version, err
}

var (
	_ API    = (*InstrumentedClient)(nil)
	_ Pinger = (*InstrumentedClient)(nil)
)
