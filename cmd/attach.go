package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quarterdeck/core/logging"
	"github.com/quarterdeck/core/pkg/gateway"
)

// NewAttachCmd creates the `attach` command.
func NewAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <session-id>",
		Short: "Attach this terminal to a remote session's PTY",
		Long: `Opens the byte pipe to a session's pseudo-terminal and bridges it to
this terminal: keystrokes are forwarded as input frames, PTY output is
written to stdout, and window size changes are forwarded as resize
frames. Detach with Ctrl-] (other control bytes pass through to the
remote session).

Examples:
  # Attach to a session
  qd attach claude-workspace-1

  # Attach through a specific gateway
  qd attach claude-workspace-1 --gateway http://localhost:8600
`,
		Args: cobra.ExactArgs(1),
		RunE: runAttachE,
	}

	cmd.Flags().String("gateway", "", "Gateway base URL (overrides config)")
	return cmd
}

func runAttachE(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url := resolveGatewayURL(cmd, cfg)

	logger := logging.NewLogger("attach")
	client := gateway.NewClient(url)
	defer client.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	manager := gateway.NewManager(client, logger)
	defer manager.CloseAll()

	t, err := manager.GetOrOpen(ctx, sessionID)
	if err != nil {
		return err
	}
	t.SetOutput(os.Stdout)

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return fmt.Errorf("attach requires an interactive terminal")
	}

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return err
	}
	defer term.Restore(stdinFd, oldState)

	// Push the current window size, then track SIGWINCH.
	sendSize := func() {
		cols, rows, err := term.GetSize(stdinFd)
		if err != nil || cols <= 0 || rows <= 0 {
			return
		}
		if err := t.SendResize(cols, rows); err != nil {
			logger.WithError(err).Debug("Resize frame failed")
		}
	}
	sendSize()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			sendSize()
		}
	}()

	// Ctrl-] detaches; everything else is forwarded verbatim so the
	// remote session still sees Ctrl-C and friends.
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				done <- err
				return
			}
			if n == 1 && buf[0] == 0x1d {
				done <- nil
				return
			}
			if err := t.SendInput(buf[:n]); err != nil {
				done <- err
				return
			}
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}
