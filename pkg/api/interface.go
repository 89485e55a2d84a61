// Package api defines the remote infrastructure API the assignment
// workflows run against, together with a REST client and an in-memory mock.
package api

import (
	"context"

	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// InstanceReader defines the interface for instance lookups
type InstanceReader interface {
	// GetInstance returns an instance, including its interface generation
	GetInstance(ctx context.Context, instanceID string) (*netif.Instance, error)
}

// InterfaceManager defines the interface for interface operations
type InterfaceManager interface {
	netif.InterfaceLister

	// AppendConfigInterface adds a legacy interface to a configuration profile
	AppendConfigInterface(ctx context.Context, instanceID, configID string, payload LegacyInterfacePayload) (*netif.LegacyInterface, error)

	// CreateInterface creates a modern interface on an instance
	CreateInterface(ctx context.Context, instanceID string, payload ModernInterfacePayload) (*netif.ModernInterface, error)

	// DeleteInterface deletes an interface. An empty configID selects the
	// modern per-instance interface.
	DeleteInterface(ctx context.Context, instanceID, configID, interfaceID string) error
}

// VPCReader defines the interface for VPC and subnet lookups
type VPCReader interface {
	// GetVPC returns a VPC with its subnets
	GetVPC(ctx context.Context, vpcID string) (*netif.VPC, error)

	// GetSubnet returns one subnet of a VPC
	GetSubnet(ctx context.Context, vpcID, subnetID string) (*netif.Subnet, error)
}

// InfraAPI combines every remote call the assignment workflows need
type InfraAPI interface {
	InstanceReader
	InterfaceManager
	VPCReader
}
