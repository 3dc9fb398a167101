package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quarterdeck/core/cli"
	"github.com/quarterdeck/core/internal/devserver"
	"github.com/quarterdeck/core/logging"
	"github.com/quarterdeck/core/pkg/push"
	"github.com/quarterdeck/core/pkg/store"
)

// NewSyncCmd creates the `sync` command.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the sync layer headlessly and stream session changes",
		Long: `Starts the snapshot poller and the push channel against the gateway and
prints every store change as it lands. Useful for debugging gateway
connectivity, merge behavior, and reconnect handling without a UI.

With --fake, an in-process simulated gateway is started first and the
sync layer connects to it, so the full pipeline can be exercised with
no real agents running.

Examples:
  # Sync against the configured gateway
  qd sync

  # Exercise the pipeline against a built-in simulated gateway
  qd sync --fake

  # Machine-readable change stream
  qd sync --json
`,
		RunE: runSyncE,
	}

	cmd.Flags().String("gateway", "", "Gateway base URL (overrides config)")
	cmd.Flags().Bool("fake", false, "Start an in-process simulated gateway and sync against it")
	cmd.Flags().Int("fake-sessions", 4, "Number of simulated sessions with --fake")
	return cmd
}

func runSyncE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url := resolveGatewayURL(cmd, cfg)

	fake, _ := cmd.Flags().GetBool("fake")
	if fake {
		n, _ := cmd.Flags().GetInt("fake-sessions")
		srv := devserver.New(n, "", logging.NewLogger("devserver"))
		addr := "127.0.0.1:8600"
		url = "http://" + addr
		go func() {
			if err := srv.ListenAndServe(addr); err != nil {
				logging.NewLogger("devserver").WithError(err).Error("Simulated gateway stopped")
			}
		}()
		defer srv.Shutdown(context.Background())
		fmt.Fprintf(os.Stderr, "simulated gateway listening on %s\n", url)
	}

	app, err := buildApp(cfg, url, logrus.NewEntry(cli.GetLogger(cmd)))
	if err != nil {
		return err
	}
	defer app.Close()
	eng := app.engine

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Session filter changes in quarterdeck.yml apply without a restart.
	watchConfig(ctx, cmd, app.filters)

	eng.Start(ctx)
	defer eng.Stop()

	eng.OnConnectionStateChange(func(s push.ConnectionState) {
		fmt.Fprintf(os.Stderr, "push channel: %s\n", s)
	})

	events := eng.Store().Subscribe()
	defer eng.Store().Unsubscribe(events)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	opts := cli.GetOptions(cmd)
	var remembered bool
	for {
		select {
		case <-sigs:
			return nil
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if !remembered && ev.Kind == store.EventList && !fake {
				rememberGatewayURL(url)
				remembered = true
			}
			printEvent(eng, ev, opts.JSONOutput)
		}
	}
}

// printEvent writes one store change to stdout, as JSON Lines with
// --json or as a human line otherwise.
func printEvent(eng engineView, ev store.Event, jsonOut bool) {
	st := eng.Store()

	if jsonOut {
		line := map[string]interface{}{
			"kind":    string(ev.Kind),
			"version": st.Version(),
		}
		if ev.SessionID != "" {
			line["session_id"] = ev.SessionID
			if rec, ok := st.Session(ev.SessionID); ok {
				line["session"] = rec
			}
		}
		if ev.Kind == store.EventHealth {
			line["active"] = st.Active()
			if err := st.PollError(); err != nil {
				line["poll_error"] = err.Error()
			}
		}
		data, err := json.Marshal(line)
		if err != nil {
			return
		}
		fmt.Println(string(data))
		return
	}

	switch ev.Kind {
	case store.EventSession:
		if rec, ok := st.Session(ev.SessionID); ok {
			fmt.Printf("session %s  status=%s step=%q actions=%d\n",
				rec.ID, rec.Status, rec.CurrentStep, len(rec.RecentActions))
		}
	case store.EventRemoved:
		fmt.Printf("removed %s\n", ev.SessionID)
	case store.EventList:
		fmt.Printf("list    %d sessions\n", st.Len())
	case store.EventHealth:
		if err := st.PollError(); err != nil {
			fmt.Printf("health  active=%d poll_error=%v\n", st.Active(), err)
		} else {
			fmt.Printf("health  active=%d\n", st.Active())
		}
	}
}

// engineView is the slice of the engine printEvent needs.
type engineView interface {
	Store() *store.Store
}
