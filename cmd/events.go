package cmd

import (
	"fmt"

	"github.com/josephlewis42/pipeshell/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

// eventsCmd groups tools for the JSON-lines log that sessions append
// command and plugin events to.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the event log written by shell sessions.",
}

// eventsReportCmd tallies the whole log and prints it as YAML.
var eventsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize command and plugin activity from the event log.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		config, err := loadConfig(newCLILogger(cmd))
		if err != nil {
			return err
		}

		fd, err := config.ReadEventLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		report := logger.NewReport()
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsReportCmd)
}
