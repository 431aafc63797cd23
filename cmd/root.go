package cmd

import (
	"github.com/spf13/cobra"
)

var cfgPath string

// rootCmd starts the REPL; subcommands cover scripts, plugins and the
// event log.
var rootCmd = &cobra.Command{
	Use:   "pipeshell",
	Short: "A structured-data shell",
	Long: `A shell whose pipelines carry typed values and lazy streams between
commands. Run without a subcommand to start an interactive session.`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

// Execute runs the command line and exits non-zero on error.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "directory holding config.yaml and the event log")
}
