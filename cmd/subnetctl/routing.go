package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func routingCheckCommand(opts *rootOptions) *cobra.Command {
	var instanceID, subnetID string

	cmd := &cobra.Command{
		Use:   "routing-check",
		Short: "Warn when an instance's subnet interface has an unrecommended routing setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()
			m, _, err := opts.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			res, err := m.RoutingCheck(ctx, instanceID, subnetID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "interface %s (%s), active: %t\n", res.Interface.InterfaceID(), res.Interface.Generation(), res.Active)
			if res.ConfigID() != "" {
				fmt.Fprintf(out, "configuration profile: %s\n", res.ConfigID())
			}
			if !res.Active && !res.BootState.Known && res.ConfigID() != "" {
				fmt.Fprintln(out, "the instance has not booted a known profile; the interface's own active flag was used")
			}
			if res.UnrecommendedRouting() {
				fmt.Fprintln(out, "WARNING: unrecommended routing; traffic to this interface may not be answered through it")
				return nil
			}
			fmt.Fprintln(out, "routing OK")
			return nil
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance to check")
	cmd.Flags().StringVar(&subnetID, "subnet", "", "Subnet of the interface")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("subnet")
	return cmd
}
