package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Print controller.state, controller.mode, and controller.status",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range []string{"controller.state", "controller.mode", "controller.status"} {
				val, err := getKV(opts.Addr, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, val)
			}
			return nil
		},
	}
}

func newModeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "mode <name>",
		Short:         "Select the active mode (only valid while Standby)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := callRPC(opts.Addr, "controller.set_mode", args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

// newLifecycleCommand builds a subcommand that issues a single lifecycle
// RPC (initialize, ready, start, stop, standby, exit) against
// controller.command with the corresponding event name.
func newLifecycleCommand(opts *rootOptions, use, rpcPath, event string) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         fmt.Sprintf("Send the %q event to the Controller", event),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := callRPC(opts.Addr, rpcPath, event)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", event, result)
			return nil
		},
	}
}
