package assign

import (
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// legacyNATAny asks the remote API to map any public address
const legacyNATAny = "any"

// chosenAddress returns the literal IPv4 to request. Auto-assignment always
// wins over a stale chosen address.
func chosenAddress(req netif.AssignmentRequest) string {
	if req.AutoAssignIPv4 {
		return netif.AutoAddress
	}
	return req.ChosenIPv4
}

// ipv6Payload returns a SLAAC auto block when IPv6 is both available and
// requested
func ipv6Payload(req netif.AssignmentRequest, dualStack bool) *api.IPv6Payload {
	if !dualStack || !req.AssignIPv6 {
		return nil
	}
	return &api.IPv6Payload{
		SLAAC:    []api.IPv6Range{{Range: netif.AutoAddress}},
		IsPublic: false,
	}
}

// BuildLegacyPayload builds the request that appends a VPC interface to a
// configuration profile. An auto-assigned address leaves ipv4.vpc unset.
func BuildLegacyPayload(req netif.AssignmentRequest, dualStack bool) api.LegacyInterfacePayload {
	payload := api.LegacyInterfacePayload{
		Purpose:  netif.PurposeVPC,
		SubnetID: req.SubnetID,
		IPv4:     api.LegacyIPv4Payload{NAT1To1: legacyNATAny},
		IPRanges: append([]string{}, req.IPRanges...),
		IPv6:     ipv6Payload(req, dualStack),
	}
	if !req.AutoAssignIPv4 {
		address := req.ChosenIPv4
		payload.IPv4.VPC = &address
	}
	return payload
}

// BuildModernPayload builds the request that creates a VPC interface on an
// instance. Public, VLAN and default route are sent as nulls.
func BuildModernPayload(req netif.AssignmentRequest, dualStack bool) api.ModernInterfacePayload {
	vpc := &api.ModernVPCPayload{
		SubnetID: req.SubnetID,
		IPv4: api.ModernIPv4Payload{
			Addresses: []api.ModernAddressPayload{{
				Address:        chosenAddress(req),
				NAT1To1Address: netif.AutoAddress,
			}},
		},
		IPv6: ipv6Payload(req, dualStack),
	}
	for _, r := range req.IPRanges {
		vpc.IPv4.Ranges = append(vpc.IPv4.Ranges, netif.ModernRange{Range: r})
	}

	payload := api.ModernInterfacePayload{VPC: vpc}
	if req.FirewallID != "" {
		firewall := req.FirewallID
		payload.FirewallID = &firewall
	}
	return payload
}
