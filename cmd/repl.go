package cmd

import (
	"github.com/josephlewis42/pipeshell/core/shell"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session.",
	Args:  cobra.NoArgs,
	RunE:  runREPL,
}

func runREPL(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	rt, err := newRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	repl, err := shell.NewREPL(rt.Session, shell.REPLOptions{
		Prompt:      rt.Config.Prompt,
		HistoryFile: rt.Config.HistoryPath(),
	})
	if err != nil {
		return err
	}
	return repl.Run(ctx)
}

func init() {
	rootCmd.AddCommand(replCmd)
}
