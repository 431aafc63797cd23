package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/josephlewis42/pipeshell/core/config"
	"github.com/spf13/cobra"
)

// initCmd writes a default config.yaml to --config; an existing file is
// left untouched.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file for pipeshell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		logger := newCLILogger(cmd)
		logger.SetLevel(log.InfoLevel)

		_, err := config.Initialize(cfgPath, logger)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
