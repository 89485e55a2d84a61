package api

import (
	"encoding/json"

	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// IPv6Range is one SLAAC range request
type IPv6Range struct {
	Range string `json:"range"`
}

// IPv6Payload requests IPv6 addressing on a VPC interface
type IPv6Payload struct {
	SLAAC    []IPv6Range `json:"slaac"`
	IsPublic bool        `json:"is_public"`
}

// LegacyIPv4Payload is the IPv4 section of a legacy interface request.
// A nil VPC lets the remote API pick the address.
type LegacyIPv4Payload struct {
	VPC     *string `json:"vpc,omitempty"`
	NAT1To1 string  `json:"nat_1_1"`
}

// LegacyInterfacePayload appends a VPC interface to a configuration profile
type LegacyInterfacePayload struct {
	Purpose  netif.Purpose     `json:"purpose"`
	SubnetID string            `json:"subnet_id"`
	IPv4     LegacyIPv4Payload `json:"ipv4"`
	IPRanges []string          `json:"ip_ranges"`
	IPv6     *IPv6Payload      `json:"ipv6,omitempty"`
}

// ModernAddressPayload is one requested address of a modern interface
type ModernAddressPayload struct {
	Address        string `json:"address"`
	NAT1To1Address string `json:"nat_1_1_address"`
}

// ModernIPv4Payload is the IPv4 section of a modern VPC interface request
type ModernIPv4Payload struct {
	Addresses []ModernAddressPayload `json:"addresses"`
	Ranges    []netif.ModernRange    `json:"ranges,omitempty"`
}

// ModernVPCPayload is the VPC section of a modern interface request
type ModernVPCPayload struct {
	SubnetID string            `json:"subnet_id"`
	IPv4     ModernIPv4Payload `json:"ipv4"`
	IPv6     *IPv6Payload      `json:"ipv6,omitempty"`
}

// ModernInterfacePayload creates a modern interface. Public, VLAN and
// DefaultRoute are sent as explicit nulls for a VPC interface.
type ModernInterfacePayload struct {
	FirewallID   *string             `json:"firewall_id"`
	DefaultRoute *netif.DefaultRoute `json:"default_route"`
	Public       *struct{}           `json:"public"`
	VLAN         *struct{}           `json:"vlan"`
	VPC          *ModernVPCPayload   `json:"vpc"`
}

// MarshalJSON sends the subnet ID in its wire form
func (p LegacyInterfacePayload) MarshalJSON() ([]byte, error) {
	type plain LegacyInterfacePayload
	return json.Marshal(struct {
		plain
		SubnetID netif.WireID `json:"subnet_id"`
	}{plain(p), netif.WireID(p.SubnetID)})
}

// MarshalJSON sends the subnet ID in its wire form
func (p ModernVPCPayload) MarshalJSON() ([]byte, error) {
	type plain ModernVPCPayload
	return json.Marshal(struct {
		plain
		SubnetID netif.WireID `json:"subnet_id"`
	}{plain(p), netif.WireID(p.SubnetID)})
}

// MarshalJSON sends the firewall ID in its wire form, or null
func (p ModernInterfacePayload) MarshalJSON() ([]byte, error) {
	type plain ModernInterfacePayload
	var firewall *netif.WireID
	if p.FirewallID != nil {
		id := netif.WireID(*p.FirewallID)
		firewall = &id
	}
	return json.Marshal(struct {
		plain
		FirewallID *netif.WireID `json:"firewall_id"`
	}{plain(p), firewall})
}
