package main

import (
	"os"

	"github.com/quarterdeck/core/cli"
	"github.com/quarterdeck/core/cmd"
	"github.com/quarterdeck/core/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"qd",
		"Live session sync and terminal tools for the Quarterdeck dashboard",
	)
	cli.SetVersionTemplate(rootCmd, version.GetInfo())

	// Errors are rendered once, by the error handler below.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	// Add subcommands
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewSyncCmd())
	rootCmd.AddCommand(cmd.NewAttachCmd())
	rootCmd.AddCommand(cmd.NewDevCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewLogsCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	cli.ApplyStyledHelpRecursive(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		verbose := false
		for _, a := range os.Args[1:] {
			if a == "-v" || a == "--verbose" {
				verbose = true
			}
		}
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
