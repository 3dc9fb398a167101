// Package gateway is the client side of the dashboard gateway, which
// the sync layer treats as opaque: a REST snapshot provider, a
// websocket push socket, and a per-session websocket byte pipe to the
// remote PTY.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quarterdeck/core/errors"
	"github.com/quarterdeck/core/pkg/models"
)

// Client fetches session snapshots from the gateway's REST surface.
// It implements poller.SnapshotSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for a gateway base URL such as
// "http://localhost:8600".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the configured gateway base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ListSessions returns the gateway's full session snapshot.
func (c *Client) ListSessions(ctx context.Context) (models.SessionsSnapshot, error) {
	endpoint := c.baseURL + "/api/sessions"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.SessionsSnapshot{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to create snapshot request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.SessionsSnapshot{}, errors.GatewayUnreachable(c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.SessionsSnapshot{}, errors.New(errors.ErrCodeSnapshotFetchFailed,
			fmt.Sprintf("gateway returned status %d", resp.StatusCode)).
			WithDetail("url", endpoint)
	}

	var snap models.SessionsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return models.SessionsSnapshot{}, errors.Wrap(err, errors.ErrCodeSnapshotDecodeFailed, "failed to decode session snapshot")
	}
	return snap, nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// WebsocketURL converts the client's base URL to the ws/wss scheme and
// appends path, e.g. WebsocketURL("/ws") for the push socket.
func (c *Client) WebsocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid gateway URL")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unsupported gateway scheme %q", u.Scheme))
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
