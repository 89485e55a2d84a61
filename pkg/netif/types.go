// Package netif models VPCs, subnets, instances and the two generations of
// network interfaces an instance can attach to a subnet.
//
// Legacy interfaces live inside a named configuration profile of an
// instance. Modern interfaces belong directly to the instance. Both are
// carried as a NetworkInterface, a closed set of two concrete types, and
// read through the Normalized* accessors so callers never depend on the
// shape difference.
package netif

// Generation identifies which interface representation an instance uses
type Generation string

const (
	// GenerationLegacy means interfaces are scoped to configuration profiles
	GenerationLegacy Generation = "legacy_config"
	// GenerationModern means interfaces are attached directly to the instance
	GenerationModern Generation = "linode"
)

// Purpose is the role of a legacy configuration-profile interface
type Purpose string

const (
	// PurposePublic is the public internet interface
	PurposePublic Purpose = "public"
	// PurposeVLAN is a layer-2 VLAN interface
	PurposeVLAN Purpose = "vlan"
	// PurposeVPC is a VPC subnet interface
	PurposeVPC Purpose = "vpc"
)

// AutoAddress is the literal token asking the remote API to pick an address
const AutoAddress = "auto"

// Subnet is a sub-range of a VPC's address space
type Subnet struct {
	ID                  string   `json:"id"`
	Label               string   `json:"label"`
	IPv4CIDR            string   `json:"ipv4"`
	IPv6CIDR            string   `json:"ipv6,omitempty"`
	AttachedInstanceIDs []string `json:"attached_instance_ids,omitempty"`
}

// HasIPv6 reports whether the subnet carries an IPv6 range
func (s Subnet) HasIPv6() bool {
	return s.IPv6CIDR != ""
}

// VPC is a regional private network holding subnets
type VPC struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	Region           string   `json:"region"`
	Subnets          []Subnet `json:"subnets"`
	DualStackEnabled bool     `json:"dual_stack_enabled"`
}

// Subnet returns the subnet with the given ID, or nil
func (v *VPC) Subnet(subnetID string) *Subnet {
	for i := range v.Subnets {
		if v.Subnets[i].ID == subnetID {
			return &v.Subnets[i]
		}
	}
	return nil
}

// Instance is a compute node
type Instance struct {
	ID                  string     `json:"id"`
	Label               string     `json:"label"`
	Region              string     `json:"region"`
	InterfaceGeneration Generation `json:"interface_generation"`
}

// IsModern reports whether the instance uses per-instance interfaces
func (i Instance) IsModern() bool {
	return i.InterfaceGeneration == GenerationModern
}

// ConfigProfile is a named boot configuration of a legacy instance
type ConfigProfile struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Interfaces []LegacyInterface `json:"interfaces"`
}

// VPCInterface returns the index of the profile's VPC interface attached to
// subnetID, or -1
func (c ConfigProfile) VPCInterface(subnetID string) int {
	for i, iface := range c.Interfaces {
		if iface.Purpose == PurposeVPC && iface.Subnet == subnetID {
			return i
		}
	}
	return -1
}

// AssignmentRequest describes one attach submission
type AssignmentRequest struct {
	InstanceID string
	SubnetID   string
	// VPCID is the subnet's VPC. When empty it is taken from the created
	// interface.
	VPCID string
	// ConfigID is required for legacy instances with more than one profile
	ConfigID       string
	AutoAssignIPv4 bool
	ChosenIPv4     string
	IPRanges       []string
	// FirewallID is only sent for modern instances
	FirewallID string
	// AssignIPv6 requests a SLAAC range; honored only when dual-stack is on
	AssignIPv6 bool
}

// UnassignmentJob describes one interface to delete
type UnassignmentJob struct {
	InstanceID  string
	ConfigID    string
	InterfaceID string
	SubnetID    string
}

// Generation returns the interface generation the job targets. A job
// carrying a configuration profile is always legacy.
func (j UnassignmentJob) Generation() Generation {
	if j.ConfigID != "" {
		return GenerationLegacy
	}
	return GenerationModern
}
