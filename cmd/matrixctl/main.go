// matrixctl is a companion CLI that drives a running matrixd over its
// Keymaster HTTP surface: querying controller.state/controller.mode and
// issuing lifecycle RPCs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	Addr string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "matrixctl",
		Short:         "Control a running matrixd instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "http://127.0.0.1:8080", "matrixd HTTP address")

	cmd.AddCommand(
		newStatusCommand(opts),
		newModeCommand(opts),
		newLifecycleCommand(opts, "initialize", "controller.command", "init"),
		newLifecycleCommand(opts, "ready", "controller.command", "get_ready"),
		newLifecycleCommand(opts, "start", "controller.command", "start"),
		newLifecycleCommand(opts, "stop", "controller.command", "stop"),
		newLifecycleCommand(opts, "standby", "controller.command", "do_standby"),
		newLifecycleCommand(opts, "exit", "controller.command", "exit"),
	)
	return cmd
}
