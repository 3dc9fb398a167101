package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/core/config"
	"github.com/quarterdeck/core/pkg/models"
	"github.com/quarterdeck/core/pkg/push"
	"github.com/quarterdeck/core/state"
	"github.com/quarterdeck/core/testutil"
)

func gatewayFlagCmd(t *testing.T, value string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("gateway", "", "")
	if value != "" {
		require.NoError(t, cmd.Flags().Set("gateway", value))
	}
	return cmd
}

func TestResolveGatewayURLPrecedence(t *testing.T) {
	t.Setenv(state.StateDirEnvVar, t.TempDir())

	cfg := &config.Config{}
	cfg.SetDefaults()

	// Nothing set anywhere: the default stands.
	assert.Equal(t, config.DefaultGatewayURL,
		resolveGatewayURL(gatewayFlagCmd(t, ""), cfg))

	// A remembered URL beats the default.
	require.NoError(t, state.Set(state.KeyGatewayURL, "http://remembered:8600"))
	assert.Equal(t, "http://remembered:8600",
		resolveGatewayURL(gatewayFlagCmd(t, ""), cfg))

	// An explicitly configured URL beats the remembered one.
	cfg.Gateway.URL = "http://configured:8600"
	assert.Equal(t, "http://configured:8600",
		resolveGatewayURL(gatewayFlagCmd(t, ""), cfg))

	// The flag beats everything.
	assert.Equal(t, "http://flag:8600",
		resolveGatewayURL(gatewayFlagCmd(t, "http://flag:8600"), cfg))
}

func TestBackoffFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	assert.Equal(t, push.DefaultBackoff(), backoffFromConfig(cfg))

	cfg.Push.BackoffBaseMs = 250
	cfg.Push.BackoffCapMs = 5000
	cfg.Push.JitterMs = 100
	b := backoffFromConfig(cfg)
	assert.Equal(t, 250*time.Millisecond, b.Base)
	assert.Equal(t, 5*time.Second, b.Cap)
	assert.Equal(t, 100*time.Millisecond, b.Jitter)
}

func TestBuildAppClosesTerminalsOnSessionRemoval(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/terminal" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.SetDefaults()

	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	app, err := buildApp(cfg, srv.URL, logrus.NewEntry(quiet))
	require.NoError(t, err)
	defer app.Close()

	_, err = app.terminals.GetOrOpen(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, app.terminals.Get("s1"))

	// The session drops out of the snapshot; the store's remove hook
	// runs synchronously and releases the cached terminal.
	app.engine.Store().ApplySnapshot(testutil.Snapshot(testutil.Session("s1")))
	app.engine.Store().ApplySnapshot(testutil.Snapshot())
	assert.Nil(t, app.terminals.Get("s1"))
}

func TestFilterHolderSwap(t *testing.T) {
	holder := &filterHolder{}
	holder.set(nil)

	scratch := models.SessionRecord{ID: "scratch-1", Model: "atlas-large"}
	prod := models.SessionRecord{ID: "prod-1", Model: "atlas-large"}

	// Nil filter tracks everything.
	assert.True(t, holder.match(scratch))

	f, err := config.NewSessionFilter(nil, []string{"scratch-*"})
	require.NoError(t, err)
	holder.set(f)
	assert.False(t, holder.match(scratch))
	assert.True(t, holder.match(prod))

	holder.set(nil)
	assert.True(t, holder.match(scratch))
}
