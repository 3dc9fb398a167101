// Package cmd implements the qd subcommands.
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quarterdeck/core/cli"
	"github.com/quarterdeck/core/config"
	"github.com/quarterdeck/core/logging"
	"github.com/quarterdeck/core/pkg/engine"
	"github.com/quarterdeck/core/pkg/gateway"
	"github.com/quarterdeck/core/pkg/models"
	"github.com/quarterdeck/core/pkg/push"
	"github.com/quarterdeck/core/state"
)

// loadConfig loads the effective configuration for a command, honoring
// the --config flag when set and falling back to the layered default
// lookup otherwise.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := cli.GetOptions(cmd)
	if opts.ConfigFile != "" {
		return config.Load(opts.ConfigFile)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.LoadFrom(cwd)
}

// resolveGatewayURL picks the gateway URL for a command: the --gateway
// flag wins, then the configured URL, then the last URL that worked
// (persisted in state).
func resolveGatewayURL(cmd *cobra.Command, cfg *config.Config) string {
	if url, _ := cmd.Flags().GetString("gateway"); url != "" {
		return url
	}
	if cfg.Gateway != nil && cfg.Gateway.URL != config.DefaultGatewayURL {
		return cfg.Gateway.URL
	}
	if url, err := state.GetString(state.KeyGatewayURL); err == nil && url != "" {
		return url
	}
	return config.DefaultGatewayURL
}

// rememberGatewayURL persists the URL that produced a successful
// snapshot so later commands default to it. Failures are ignored;
// state is a convenience, not a requirement.
func rememberGatewayURL(url string) {
	_ = state.Set(state.KeyGatewayURL, url)
}

// filterHolder carries the engine's session filter behind an atomic
// pointer so a config reload can swap it while the engine runs. A nil
// inner filter tracks everything.
type filterHolder struct {
	ptr atomic.Pointer[config.SessionFilter]
}

func (h *filterHolder) set(f *config.SessionFilter) {
	h.ptr.Store(f)
}

func (h *filterHolder) match(r models.SessionRecord) bool {
	return h.ptr.Load().Match(r.ID, r.Model)
}

// syncApp bundles what a live command runs against one gateway: the
// engine, its client, the terminal manager registered as the store's
// remove hook, and the swappable session filter.
type syncApp struct {
	engine    *engine.Engine
	client    *gateway.Client
	terminals *gateway.Manager
	filters   *filterHolder
}

// Close releases the app's terminals and pooled connections.
func (a *syncApp) Close() {
	a.terminals.CloseAll()
	a.client.Close()
}

// buildApp wires a gateway client and push dialer into an engine using
// the configured reconnect policy and session filters. Sessions that
// drop out of a snapshot have their cached terminals closed through
// the store's remove hook.
func buildApp(cfg *config.Config, gatewayURL string, logger *logrus.Entry) (*syncApp, error) {
	client := gateway.NewClient(gatewayURL)

	wsURL, err := client.WebsocketURL("/ws")
	if err != nil {
		return nil, err
	}

	filter, err := cfg.Filter()
	if err != nil {
		return nil, err
	}
	holder := &filterHolder{}
	holder.set(filter)

	eng := engine.New(engine.Options{
		Source:       client,
		Dialer:       &gateway.WSDialer{URL: wsURL},
		PollInterval: cfg.PollInterval(),
		Backoff:      backoffFromConfig(cfg),
		MaxAttempts:  cfg.Push.MaxAttempts,
		Filter:       holder.match,
		Logger:       logger.WithField("component", "engine"),
	})

	terminals := gateway.NewManager(client, logger.WithField("component", "terminals"))
	eng.Store().OnRemove(terminals.CloseSessions)

	return &syncApp{engine: eng, client: client, terminals: terminals, filters: holder}, nil
}

// watchConfig watches the config directories and re-applies the session
// filter when quarterdeck.yml or a conf.d fragment changes. Other
// settings (gateway URL, reconnect policy) still need a restart.
func watchConfig(ctx context.Context, cmd *cobra.Command, holder *filterHolder) {
	logger := logging.NewLogger("config")

	dirs := []string{config.GlobalConfigDir()}
	if dir := config.GlobalConfigDir(); dir != "" {
		dirs = append(dirs, filepath.Join(dir, "conf.d"))
	}
	if opts := cli.GetOptions(cmd); opts.ConfigFile != "" {
		dirs = append(dirs, filepath.Dir(opts.ConfigFile))
	} else if cwd, err := os.Getwd(); err == nil {
		if path, err := config.FindConfigFile(cwd); err == nil {
			dirs = append(dirs, filepath.Dir(path))
		}
	}

	watcher, err := config.NewWatcher(dirs, 0, func(file string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			logger.WithError(err).Warn("Config changed but reload failed")
			return
		}
		filter, err := cfg.Filter()
		if err != nil {
			logger.WithError(err).Warn("Config changed but session filters are invalid")
			return
		}
		holder.set(filter)
		logger.WithField("file", file).Info("Session filters reloaded")
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Config watching unavailable")
		return
	}
	go watcher.Start(ctx)
}

func backoffFromConfig(cfg *config.Config) push.Backoff {
	b := push.DefaultBackoff()
	if cfg.Push == nil {
		return b
	}
	if cfg.Push.BackoffBaseMs > 0 {
		b.Base = msToDuration(cfg.Push.BackoffBaseMs)
	}
	if cfg.Push.BackoffCapMs > 0 {
		b.Cap = msToDuration(cfg.Push.BackoffCapMs)
	}
	if cfg.Push.JitterMs > 0 {
		b.Jitter = msToDuration(cfg.Push.JitterMs)
	}
	return b
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
