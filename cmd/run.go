package cmd

import (
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	runCommand string

	// exit is swapped out by tests.
	exit = os.Exit
)

var runCmd = &cobra.Command{
	Use:   "run [FILE]",
	Short: "Run a script file, or a script given with -c.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		var name string
		var src []byte
		switch {
		case runCommand != "" && len(args) > 0:
			return errors.New("give either a file or -c, not both")
		case runCommand != "":
			name, src = "command-line", []byte(runCommand)
		case len(args) == 1:
			var err error
			name = args[0]
			if src, err = os.ReadFile(name); err != nil {
				return err
			}
		default:
			return errors.New("nothing to run: give a file or -c")
		}

		rt, err := newRuntime(cmd.Context(), cmd)
		if err != nil {
			return err
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		go func() {
			for range sigs {
				rt.Engine.Signals.Interrupt()
			}
		}()

		status := rt.Session.Run(cmd.Context(), name, src)
		signal.Stop(sigs)

		if err := rt.Close(); err != nil {
			rt.Log.Error("shutting down", "err", err)
		}
		if status != 0 {
			exit(status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runCommand, "command", "c", "", "script text to run")
}
