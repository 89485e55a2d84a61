package main

import (
	"fmt"
	"io"

	"github.com/johnlam90/vpc-subnet-assigner/pkg/unassign"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/util"
	"github.com/spf13/cobra"
)

func unassignCommand(opts *rootOptions) *cobra.Command {
	var (
		vpcID     string
		subnetID  string
		instances string
	)

	cmd := &cobra.Command{
		Use:   "unassign",
		Short: "Detach instances from a VPC subnet",
		Long: "Detach instances from a VPC subnet. Deletions run concurrently; instances\n" +
			"that fail stay attached and are reported together at the end.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selection := unassign.NewSelection(util.SplitIDs(instances)...)
			if selection.Len() == 0 {
				return fmt.Errorf("--instances must name at least one instance")
			}

			if opts.dryRun {
				for _, id := range selection.IDs() {
					fmt.Fprintf(cmd.OutOrStdout(), "would detach instance %s from subnet %s\n", id, subnetID)
				}
				return nil
			}

			ctx, cancel := opts.context()
			defer cancel()
			m, _, err := opts.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			result := m.Unassign(ctx, selection, vpcID, subnetID)
			printBatchResult(cmd.OutOrStdout(), result)
			return result.Err()
		},
	}

	cmd.Flags().StringVar(&vpcID, "vpc", "", "VPC of the subnet")
	cmd.Flags().StringVar(&subnetID, "subnet", "", "Subnet to detach from")
	cmd.Flags().StringVar(&instances, "instances", "", "Comma separated instance IDs")
	_ = cmd.MarkFlagRequired("vpc")
	_ = cmd.MarkFlagRequired("subnet")
	_ = cmd.MarkFlagRequired("instances")
	return cmd
}

func printBatchResult(out io.Writer, result unassign.BatchResult) {
	for _, id := range result.Succeeded {
		fmt.Fprintf(out, "detached %s\n", id)
	}
	for _, f := range result.Failed {
		fmt.Fprintf(out, "failed %s: %v\n", f.InstanceID, f.Err)
	}
}
