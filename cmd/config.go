package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quarterdeck/core/config"
)

// NewConfigCmd creates the `config` command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the quarterdeck configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective merged configuration",
		Long: `Shows the final configuration after merging all layers:
1. Global config (~/.config/quarterdeck/quarterdeck.yml)
2. Fragment files (conf.d/*.toml, lexical order)
3. Project config (quarterdeck.yml, found by walking up)
4. Environment overlay (QD_CONFIG_OVERLAY)
This is useful for debugging configuration issues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if global := config.GlobalConfigPath(); global != "" {
				if _, err := os.Stat(global); err == nil {
					fmt.Printf("# Global: %s\n", global)
				}
			}
			if cwd, err := os.Getwd(); err == nil {
				if project, err := config.FindConfigFile(cwd); err == nil {
					fmt.Printf("# Project: %s\n", project)
				}
			}
			if overlay := os.Getenv(config.OverlayEnvVar); overlay != "" {
				fmt.Printf("# Overlay: %s\n", config.OverlayEnvVar)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration against its schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("configuration is valid")
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
