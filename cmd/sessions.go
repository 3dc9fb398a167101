package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quarterdeck/core/cli"
	"github.com/quarterdeck/core/config"
	"github.com/quarterdeck/core/pkg/gateway"
	"github.com/quarterdeck/core/pkg/models"
	"github.com/quarterdeck/core/pkg/push"
	"github.com/quarterdeck/core/pkg/store"
)

// NewSessionsCmd creates the `sessions` command.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List remote agent sessions known to the gateway",
		Long: `Fetches the session snapshot from the gateway and prints one line per
session. With --watch, keeps the list live: the snapshot poller and the
push channel feed updates and the table re-renders as sessions change.

Examples:
  # One-shot session list
  qd sessions

  # Live view against a specific gateway
  qd sessions --watch --gateway http://localhost:8600
`,
		RunE: runSessionsE,
	}

	cmd.Flags().String("gateway", "", "Gateway base URL (overrides config)")
	cmd.Flags().BoolP("watch", "w", false, "Keep the session list live")
	return cmd
}

func runSessionsE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url := resolveGatewayURL(cmd, cfg)

	watch, _ := cmd.Flags().GetBool("watch")
	if watch {
		return watchSessions(cmd, cfg, url)
	}

	client := gateway.NewClient(url)
	defer client.Close()

	snap, err := client.ListSessions(cmd.Context())
	if err != nil {
		return err
	}
	rememberGatewayURL(url)

	// Run the snapshot through the same filter the live view uses.
	filter, err := cfg.Filter()
	if err != nil {
		return err
	}
	records := snap.Sessions
	if filter != nil {
		kept := records[:0]
		for _, r := range records {
			if filter.Match(r.ID, r.Model) {
				kept = append(kept, r)
			}
		}
		records = kept
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	renderSessions(os.Stdout, records, snap.Active, push.Disconnected, nil)
	return nil
}

func watchSessions(cmd *cobra.Command, cfg *config.Config, url string) error {
	app, err := buildApp(cfg, url, logrus.NewEntry(cli.GetLogger(cmd)))
	if err != nil {
		return err
	}
	defer app.Close()
	eng := app.engine

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	watchConfig(ctx, cmd, app.filters)

	eng.Start(ctx)
	defer eng.Stop()

	events := eng.Store().Subscribe()
	defer eng.Store().Unsubscribe(events)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	out := termenv.NewOutput(os.Stdout)
	tty := isatty.IsTerminal(os.Stdout.Fd())

	redraw := func() {
		if tty {
			out.ClearScreen()
		}
		st := eng.Store()
		renderSessions(os.Stdout, st.Sessions(), st.Active(), eng.ConnectionState(), st.PollError())
	}
	redraw()

	var seen bool
	for {
		select {
		case <-sigs:
			return nil
		case <-ctx.Done():
			return nil
		case ev := <-events:
			// The first snapshot confirms the gateway; remember it once.
			if !seen && ev.Kind == store.EventList {
				rememberGatewayURL(url)
				seen = true
			}
			redraw()
		}
	}
}

// renderSessions prints the session table with colored status cells.
func renderSessions(w *os.File, records []models.SessionRecord, active int, connState push.ConnectionState, pollErr error) {
	out := termenv.NewOutput(w)
	if !isatty.IsTerminal(w.Fd()) {
		out = termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))
	}

	fmt.Fprintf(w, "%d sessions, %d active  [push: %s]\n", len(records), active, connState)
	if pollErr != nil {
		fmt.Fprintf(w, "%s\n", out.String("poll error: "+pollErr.Error()).Foreground(termenv.ANSIRed))
	}

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMODEL\tCOST\tCTX\tSTEP\tPREVIEW")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t$%.2f\t%.0f%%\t%s\t%s\n",
			r.ID,
			statusCell(out, r.Status),
			r.Model,
			r.CostUSD,
			r.ContextPercent,
			r.CurrentStep,
			truncate(r.Preview, 40),
		)
	}
	tw.Flush()
}

func statusCell(out *termenv.Output, s models.SessionStatus) string {
	switch s {
	case models.StatusActive:
		return out.String(string(s)).Foreground(termenv.ANSIGreen).String()
	case models.StatusWaitingInput:
		return out.String(string(s)).Foreground(termenv.ANSIYellow).String()
	case models.StatusError:
		return out.String(string(s)).Foreground(termenv.ANSIRed).String()
	case models.StatusStarting, models.StatusCreated:
		return out.String(string(s)).Foreground(termenv.ANSICyan).String()
	default:
		return out.String(string(s)).Faint().String()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
