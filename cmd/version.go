package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarterdeck/core/cli"
	"github.com/quarterdeck/core/version"
)

// NewVersionCmd creates the `version` command.
func NewVersionCmd() *cobra.Command {
	return cli.NewVersionCommand("qd", version.GetInfo())
}
