package main

import (
	"fmt"
	"io"

	"github.com/johnlam90/vpc-subnet-assigner/pkg/addrspace"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/util"
	"github.com/spf13/cobra"
)

func capacityCommand(opts *rootOptions) *cobra.Command {
	var (
		ipv6      string
		dualStack bool
		vpcID     string
		subnetID  string
	)

	cmd := &cobra.Command{
		Use:   "capacity [ipv4-cidr]",
		Short: "Show how many addresses a subnet block holds",
		Long: "Show the raw and usable IPv4 address counts of a CIDR block. With --vpc and\n" +
			"--subnet the block of an existing subnet is looked up instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				calc := addrspace.Calculator{DualStack: dualStack}
				printCapacity(cmd.OutOrStdout(), calc.SubnetCapacity(netif.Subnet{IPv4CIDR: args[0], IPv6CIDR: ipv6}), dualStack)
				return nil
			}
			if vpcID == "" || subnetID == "" {
				return fmt.Errorf("either a CIDR argument or --vpc and --subnet are required")
			}

			ctx, cancel := opts.context()
			defer cancel()
			m, cfg, err := opts.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			capacity, err := m.SubnetCapacity(ctx, vpcID, subnetID)
			if err != nil {
				return err
			}
			printCapacity(cmd.OutOrStdout(), capacity, cfg.DualStackEnabled)
			return nil
		},
	}

	cmd.Flags().StringVar(&ipv6, "ipv6", "", "IPv6 block or prefix length of the subnet, e.g. /56")
	cmd.Flags().BoolVar(&dualStack, "dual-stack", false, "Compute IPv6 capacity")
	cmd.Flags().StringVar(&vpcID, "vpc", "", "VPC of an existing subnet")
	cmd.Flags().StringVar(&subnetID, "subnet", "", "Existing subnet to inspect")
	return cmd
}

func printCapacity(out io.Writer, capacity addrspace.Capacity, dualStack bool) {
	if !capacity.IPv4Known {
		fmt.Fprintln(out, "IPv4: unknown")
	} else {
		fmt.Fprintf(out, "IPv4 available: %d\n", capacity.IPv4Available)
		fmt.Fprintf(out, "IPv4 usable: %d\n", capacity.IPv4Usable)
	}
	if dualStack {
		fmt.Fprintf(out, "IPv6 instances: %d\n", capacity.IPv6Linodes)
	}
}

func recommendCommand(opts *rootOptions) *cobra.Command {
	var (
		last     string
		existing string
		vpcID    string
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Suggest the next free /24 for a new subnet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if vpcID == "" {
				recommended := addrspace.RecommendNextIPv4CIDR(last, util.SplitIDs(existing))
				if recommended == "" {
					return fmt.Errorf("no free /24 block left in 10.0.0.0/8")
				}
				fmt.Fprintln(cmd.OutOrStdout(), recommended)
				return nil
			}

			ctx, cancel := opts.context()
			defer cancel()
			m, _, err := opts.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			recommended, err := m.RecommendSubnetCIDR(ctx, vpcID, last)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), recommended)
			return nil
		},
	}

	cmd.Flags().StringVar(&last, "last", "", "The previously suggested block")
	cmd.Flags().StringVar(&existing, "existing", "", "Comma separated blocks already in use")
	cmd.Flags().StringVar(&vpcID, "vpc", "", "Read the blocks in use from this VPC")
	return cmd
}
