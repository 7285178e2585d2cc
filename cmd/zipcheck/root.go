package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pola2025/zipcheck-sub000/config"
)

// cli carries the state shared by every subcommand.
type cli struct {
	cfgFile string
	envFile string
	cfg     config.Config

	// Remote server for submit, get and cancel.
	server string
	token  string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "zipcheck",
		Short:         "Guarded LLM quote analysis",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgFile, c.envFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before ZIPCHECK_* overrides")
	root.PersistentFlags().StringVar(&c.server, "server", os.Getenv("ZIPCHECK_SERVER"), "send submit, get and cancel to a running server")
	root.PersistentFlags().StringVar(&c.token, "token", os.Getenv("ZIPCHECK_TOKEN"), "bearer token for --server")

	root.AddCommand(
		newServeCmd(c),
		newSubmitCmd(c),
		newGetCmd(c),
		newCancelCmd(c),
		newMigrateCmd(c),
		newSweepCmd(c),
	)
	return root
}
