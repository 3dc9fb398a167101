package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarterdeck/core/internal/devserver"
	"github.com/quarterdeck/core/logging"
)

// NewDevCmd creates the `dev` command group.
func NewDevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development helpers",
	}
	cmd.AddCommand(newDevServeCmd())
	return cmd
}

func newDevServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulated gateway for local development",
		Long: `Serves the gateway surface the sync layer consumes: the snapshot
endpoint, the push websocket, and per-session PTY websockets backed by
real local shells. Simulated sessions emit activity, change status,
and occasionally stop and get replaced, so dashboards and the qd
commands can be developed without real agents.

Examples:
  # Serve 4 simulated sessions on the default port
  qd dev serve

  # More sessions, custom port and shell
  qd dev serve --sessions 8 --addr 127.0.0.1:9700 --shell /bin/bash
`,
		RunE: runDevServeE,
	}

	cmd.Flags().Int("sessions", 4, "Number of simulated sessions")
	cmd.Flags().String("addr", "127.0.0.1:8600", "Listen address")
	cmd.Flags().String("shell", "", "Shell for PTY sessions (default: $SHELL)")
	return cmd
}

func runDevServeE(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("sessions")
	addr, _ := cmd.Flags().GetString("addr")
	shell, _ := cmd.Flags().GetString("shell")

	logger := logging.NewLogger("devserver")
	srv := devserver.New(n, shell, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(addr)
	}()
	fmt.Printf("simulated gateway listening on http://%s (%d sessions)\n", addr, n)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case err := <-errCh:
		return err
	case <-sigs:
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
