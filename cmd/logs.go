package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/quarterdeck/core/logging"
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs [component]",
		Short: "Show Quarterdeck component logs",
		Long: `Prints the log file for a component (qd, engine, devserver, attach).
Log files live under ~/.quarterdeck/logs, one file per component per
day. Without arguments, lists the components that have logs.

Examples:
  # List components with logs
  qd logs

  # Print today's engine log
  qd logs engine

  # Follow the devserver log
  qd logs devserver -f
`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLogsE,
	}

	cmd.Flags().BoolP("follow", "f", false, "Follow log output")
	return cmd
}

func runLogsE(cmd *cobra.Command, args []string) error {
	dir, err := logging.LogDir()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return listLogComponents(dir)
	}

	component := args[0]
	path, err := latestLogFile(dir, component)
	if err != nil {
		return err
	}

	follow, _ := cmd.Flags().GetBool("follow")
	if !follow {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(os.Stdout, f)
		return err
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Println(line.Text)
		case <-cmd.Context().Done():
			t.Stop()
			return nil
		}
	}
}

// listLogComponents prints each component that has at least one log
// file, with its newest file.
func listLogComponents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no logs yet")
			return nil
		}
		return err
	}

	latest := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		component := componentFromLogName(name)
		if component == "" {
			continue
		}
		// Date-suffixed names sort lexically, so the max is the newest.
		if name > latest[component] {
			latest[component] = name
		}
	}

	if len(latest) == 0 {
		fmt.Println("no logs yet")
		return nil
	}

	components := make([]string, 0, len(latest))
	for c := range latest {
		components = append(components, c)
	}
	sort.Strings(components)
	for _, c := range components {
		fmt.Printf("%s\t%s\n", c, filepath.Join(dir, latest[c]))
	}
	return nil
}

// latestLogFile finds the newest log file for a component.
func latestLogFile(dir, component string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var newest string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		if componentFromLogName(name) != component {
			continue
		}
		if name > newest {
			newest = name
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no logs for component %q in %s", component, dir)
	}
	return filepath.Join(dir, newest), nil
}

// componentFromLogName strips the -YYYY-MM-DD.log suffix.
func componentFromLogName(name string) string {
	base := strings.TrimSuffix(name, ".log")
	// component names may themselves contain dashes; the date is the
	// last three dash-separated fields.
	parts := strings.Split(base, "-")
	if len(parts) < 4 {
		return ""
	}
	return strings.Join(parts[:len(parts)-3], "-")
}
