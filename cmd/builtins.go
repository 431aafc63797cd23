package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/josephlewis42/pipeshell/commands"
	"github.com/spf13/cobra"
)

var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the builtin commands.",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		for _, builtin := range commands.ListBuiltinCommands() {
			sig := builtin.Signature()
			fmt.Fprintf(w, "%s\t%s\n", sig.Name, sig.Usage)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
