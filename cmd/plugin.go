package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/josephlewis42/pipeshell/core/plugin"
	"github.com/spf13/cobra"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect plugin executables.",
}

var pluginListCmd = &cobra.Command{
	Use:   "list PATH [ARG]...",
	Short: "Start a plugin and list the commands it provides.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		configuration, err := loadConfig(newCLILogger(cmd))
		if err != nil {
			return err
		}

		host := plugin.NewHost(plugin.Options{
			Log:              newCLILogger(cmd),
			HandshakeTimeout: configuration.HandshakeTimeout(),
		})
		defer host.Close()

		sigs, err := host.Signatures(cmd.Context(), plugin.NewIdentity(path, args[1:]...))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		for _, sig := range sigs {
			fmt.Fprintf(w, "%s\t%s\n", sig, sig.Usage)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(pluginCmd)
	pluginCmd.AddCommand(pluginListCmd)
}
