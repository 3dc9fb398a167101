package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/core/errors"
	"github.com/quarterdeck/core/pkg/models"
	"github.com/quarterdeck/core/testutil"
)

func TestListSessions(t *testing.T) {
	snap := testutil.Snapshot(
		testutil.Session("s1"),
		testutil.Session("s2", testutil.WithStatus(models.StatusStopped)),
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(snap))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/") // trailing slash is trimmed
	defer c.Close()

	got, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Sessions, 2)
	assert.Equal(t, "s1", got.Sessions[0].ID)
	assert.Equal(t, 1, got.Active)
}

func TestListSessionsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listening anymore

	c := NewClient(srv.URL)
	_, err := c.ListSessions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGatewayUnreachable))
}

func TestListSessionsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ListSessions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSnapshotFetchFailed))
}

func TestListSessionsBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ListSessions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSnapshotDecodeFailed))
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"http://localhost:8600", "/ws", "ws://localhost:8600/ws"},
		{"https://gw.example.com", "/ws", "wss://gw.example.com/ws"},
		{"ws://localhost:8600", "/ws/terminal", "ws://localhost:8600/ws/terminal"},
		{"wss://gw.example.com", "/ws", "wss://gw.example.com/ws"},
		{"http://localhost:8600/gateway/", "/ws", "ws://localhost:8600/gateway/ws"},
	}
	for _, tt := range tests {
		got, err := NewClient(tt.base).WebsocketURL(tt.path)
		require.NoError(t, err, tt.base)
		assert.Equal(t, tt.want, got, tt.base)
	}
}

func TestWebsocketURLRejectsScheme(t *testing.T) {
	_, err := NewClient("ftp://localhost").WebsocketURL("/ws")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}
