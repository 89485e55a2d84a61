package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/assign"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/util"
	"github.com/spf13/cobra"
)

func assignCommand(opts *rootOptions) *cobra.Command {
	var (
		req        netif.AssignmentRequest
		ipv4       string
		ranges     string
		generation string
		dualStack  bool
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Attach an instance to a VPC subnet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ipv4 == "" || ipv4 == netif.AutoAddress {
				req.AutoAssignIPv4 = true
			} else {
				req.ChosenIPv4 = ipv4
			}
			req.IPRanges = util.SplitIDs(ranges)

			if opts.dryRun {
				return printPayload(cmd.OutOrStdout(), netif.Generation(generation), req, dualStack)
			}

			ctx, cancel := opts.context()
			defer cancel()
			m, _, err := opts.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			assignment, err := m.Assign(ctx, req)
			if err != nil {
				printFieldErrors(cmd.ErrOrStderr(), err)
				return err
			}
			printAssignment(cmd.OutOrStdout(), assignment)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.InstanceID, "instance", "", "Instance to attach")
	flags.StringVar(&req.SubnetID, "subnet", "", "Subnet to attach to")
	flags.StringVar(&req.VPCID, "vpc", "", "VPC of the subnet")
	flags.StringVar(&req.ConfigID, "config", "", "Configuration profile, required for legacy instances with several profiles")
	flags.StringVar(&ipv4, "ipv4", netif.AutoAddress, "IPv4 address to request, or auto")
	flags.StringVar(&ranges, "ranges", "", "Comma separated IPv4 ranges to route to the interface")
	flags.StringVar(&req.FirewallID, "firewall", "", "Firewall of a modern interface")
	flags.BoolVar(&req.AssignIPv6, "ipv6", false, "Request an IPv6 SLAAC range")
	flags.StringVar(&generation, "generation", string(netif.GenerationModern), "Interface generation to print with --dry-run")
	flags.BoolVar(&dualStack, "dual-stack", false, "Include IPv6 in the --dry-run payload")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("subnet")
	return cmd
}

func printPayload(out io.Writer, generation netif.Generation, req netif.AssignmentRequest, dualStack bool) error {
	var payload interface{}
	switch generation {
	case netif.GenerationModern:
		payload = assign.BuildModernPayload(req, dualStack)
	case netif.GenerationLegacy:
		payload = assign.BuildLegacyPayload(req, dualStack)
	default:
		return fmt.Errorf("unknown generation %q, expected %q or %q", generation, netif.GenerationModern, netif.GenerationLegacy)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// printFieldErrors lists the rejected request properties one per line
func printFieldErrors(out io.Writer, err error) {
	apiErr, ok := api.AsErrors(err)
	if !ok {
		return
	}
	for _, fieldErr := range apiErr.FieldErrors() {
		fmt.Fprintf(out, "  %s: %s\n", fieldErr.Field, fieldErr.Reason)
	}
}

func printAssignment(out io.Writer, a *assign.Assignment) {
	fmt.Fprintf(out, "Interface %s attached instance %s to subnet %s\n", a.Interface.InterfaceID(), a.InstanceID, a.SubnetID)
	if a.ConfigID != "" {
		fmt.Fprintf(out, "  configuration profile: %s\n", a.ConfigID)
	}
	if addr, ok := netif.NormalizedPrimaryIPv4(a.Interface); ok {
		fmt.Fprintf(out, "  IPv4: %s\n", addr)
	}
	if nat, ok := netif.NormalizedNAT1To1(a.Interface); ok {
		fmt.Fprintf(out, "  1:1 NAT: %s\n", nat)
	}
	for _, r := range netif.NormalizedIPRanges(a.Interface) {
		fmt.Fprintf(out, "  range: %s\n", r)
	}
}
