package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// ENIManager defines the interface for ENI management operations
type ENIManager interface {
	// CreateENI creates a new ENI
	CreateENI(ctx context.Context, spec ENISpec) (*types.NetworkInterface, error)

	// AttachENI attaches an ENI to an EC2 instance
	AttachENI(ctx context.Context, eniID, instanceID string, deviceIndex int) (string, error)

	// DetachENI detaches an ENI from an EC2 instance
	DetachENI(ctx context.Context, attachmentID string, force bool) error

	// DeleteENI deletes an ENI
	DeleteENI(ctx context.Context, eniID string) error

	// AssociatePublicAddress maps a newly allocated public address to the
	// ENI's primary private address
	AssociatePublicAddress(ctx context.Context, eniID, privateIP string) (string, error)

	// ReleasePublicAddress removes and releases the address mapped to an ENI
	ReleasePublicAddress(ctx context.Context, association *types.NetworkInterfaceAssociation) error
}

// ENIDescriber defines the interface for ENI description operations
type ENIDescriber interface {
	// DescribeENI describes an ENI
	DescribeENI(ctx context.Context, eniID string) (*types.NetworkInterface, error)

	// ListInstanceENIs returns the ENIs attached to an instance
	ListInstanceENIs(ctx context.Context, instanceID string) ([]types.NetworkInterface, error)

	// WaitForENIDetachment waits for an ENI to be detached
	WaitForENIDetachment(ctx context.Context, eniID string, timeout time.Duration) error
}

// SubnetResolver defines the interface for VPC and subnet lookups
type SubnetResolver interface {
	// GetVPC describes a VPC with its subnets
	GetVPC(ctx context.Context, vpcID string) (*netif.VPC, error)

	// GetSubnet describes one subnet of a VPC
	GetSubnet(ctx context.Context, vpcID, subnetID string) (*netif.Subnet, error)
}

// SecurityGroupResolver defines the interface for security group resolution operations
type SecurityGroupResolver interface {
	// ResolveSecurityGroupID returns the ID for a security group ID or name
	ResolveSecurityGroupID(ctx context.Context, firewall string) (string, error)
}

// InstanceDescriber defines the interface for instance lookups
type InstanceDescriber interface {
	// DescribeInstance describes an EC2 instance
	DescribeInstance(ctx context.Context, instanceID string) (*netif.Instance, error)
}
