package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
)

// EC2ENIManager implements the ENIManager interface
type EC2ENIManager struct {
	// EC2 is the underlying EC2 client
	EC2 EC2API
	// Logger is used for structured logging
	Logger logr.Logger
	caller *caller
}

// NewEC2ENIManager creates a new EC2ENIManager
func NewEC2ENIManager(ec2Client EC2API, c *caller, logger logr.Logger) *EC2ENIManager {
	return &EC2ENIManager{
		EC2:    ec2Client,
		Logger: logger.WithName("ec2-eni-manager"),
		caller: c,
	}
}

// CreateENI creates a new ENI. It is never retried, since a retry after a
// lost response would create a second interface.
func (m *EC2ENIManager) CreateENI(ctx context.Context, spec ENISpec) (*types.NetworkInterface, error) {
	log := m.Logger.WithValues("subnetID", spec.SubnetID, "securityGroups", spec.SecurityGroupIDs)
	log.Info("Creating ENI")

	// Convert tags map to AWS tags
	var tagSpecs []types.TagSpecification
	if len(spec.Tags) > 0 {
		awsTags := make([]types.Tag, 0, len(spec.Tags))
		for k, v := range spec.Tags {
			awsTags = append(awsTags, types.Tag{
				Key:   aws.String(k),
				Value: aws.String(v),
			})
		}
		tagSpecs = append(tagSpecs, types.TagSpecification{
			ResourceType: types.ResourceTypeNetworkInterface,
			Tags:         awsTags,
		})
	}

	input := &ec2.CreateNetworkInterfaceInput{
		SubnetId:          aws.String(spec.SubnetID),
		Groups:            spec.SecurityGroupIDs,
		TagSpecifications: tagSpecs,
	}
	if spec.Description != "" {
		input.Description = aws.String(spec.Description)
	}
	if spec.PrivateIPAddress != "" {
		input.PrivateIpAddress = aws.String(spec.PrivateIPAddress)
	}
	for _, prefix := range spec.IPv4Prefixes {
		input.Ipv4Prefixes = append(input.Ipv4Prefixes, types.Ipv4PrefixSpecificationRequest{
			Ipv4Prefix: aws.String(prefix),
		})
	}
	if spec.AssignIPv6 {
		input.Ipv6AddressCount = aws.Int32(1)
	}

	var result *ec2.CreateNetworkInterfaceOutput
	err := m.caller.call(ctx, "CreateNetworkInterface", func(ctx context.Context) error {
		var err error
		result, err = m.EC2.CreateNetworkInterface(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.NetworkInterface == nil {
		return nil, fmt.Errorf("create network interface in subnet %s returned no interface", spec.SubnetID)
	}

	log.Info("Successfully created ENI", "eniID", aws.ToString(result.NetworkInterface.NetworkInterfaceId))
	return result.NetworkInterface, nil
}

// AttachENI attaches an ENI to an EC2 instance
func (m *EC2ENIManager) AttachENI(ctx context.Context, eniID, instanceID string, deviceIndex int) (string, error) {
	log := m.Logger.WithValues("eniID", eniID, "instanceID", instanceID, "deviceIndex", deviceIndex)
	log.Info("Attaching ENI to instance")

	input := &ec2.AttachNetworkInterfaceInput{
		DeviceIndex:        aws.Int32(int32(deviceIndex)),
		InstanceId:         aws.String(instanceID),
		NetworkInterfaceId: aws.String(eniID),
	}

	var result *ec2.AttachNetworkInterfaceOutput
	err := m.caller.call(ctx, "AttachNetworkInterface", func(ctx context.Context) error {
		var err error
		result, err = m.EC2.AttachNetworkInterface(ctx, input)
		return err
	})
	if err != nil {
		return "", err
	}

	attachmentID := aws.ToString(result.AttachmentId)
	log.Info("Successfully attached ENI", "attachmentID", attachmentID)
	return attachmentID, nil
}

// DetachENI detaches an ENI from an EC2 instance. A missing attachment
// counts as detached.
func (m *EC2ENIManager) DetachENI(ctx context.Context, attachmentID string, force bool) error {
	log := m.Logger.WithValues("attachmentID", attachmentID, "force", force)
	log.Info("Detaching ENI")

	input := &ec2.DetachNetworkInterfaceInput{
		AttachmentId: aws.String(attachmentID),
		Force:        aws.Bool(force),
	}

	err := m.caller.callWithRetry(ctx, log, "DetachNetworkInterface", func(ctx context.Context) error {
		_, err := m.EC2.DetachNetworkInterface(ctx, input)
		return err
	})
	if err != nil {
		if api.IsNotFound(err) {
			log.Info("ENI attachment no longer exists, considering detachment successful")
			return nil
		}
		return err
	}

	log.Info("Successfully detached ENI")
	return nil
}

// DeleteENI deletes an ENI. A missing ENI is reported as a 404 unless an
// earlier attempt of the same call may have deleted it.
func (m *EC2ENIManager) DeleteENI(ctx context.Context, eniID string) error {
	log := m.Logger.WithValues("eniID", eniID)
	log.Info("Deleting ENI")

	input := &ec2.DeleteNetworkInterfaceInput{
		NetworkInterfaceId: aws.String(eniID),
	}

	attempts := 0
	err := m.caller.callWithRetry(ctx, log, "DeleteNetworkInterface", func(ctx context.Context) error {
		attempts++
		_, err := m.EC2.DeleteNetworkInterface(ctx, input)
		return err
	})
	if attempts > 1 && api.IsNotFound(err) {
		log.Info("ENI already gone after a retried delete", "attempts", attempts)
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("Successfully deleted ENI")
	return nil
}

// AssociatePublicAddress allocates an Elastic IP and maps it to privateIP
// on the ENI
func (m *EC2ENIManager) AssociatePublicAddress(ctx context.Context, eniID, privateIP string) (string, error) {
	log := m.Logger.WithValues("eniID", eniID, "privateIP", privateIP)

	var allocation *ec2.AllocateAddressOutput
	err := m.caller.call(ctx, "AllocateAddress", func(ctx context.Context) error {
		var err error
		allocation, err = m.EC2.AllocateAddress(ctx, &ec2.AllocateAddressInput{Domain: types.DomainTypeVpc})
		return err
	})
	if err != nil {
		return "", err
	}

	err = m.caller.call(ctx, "AssociateAddress", func(ctx context.Context) error {
		_, err := m.EC2.AssociateAddress(ctx, &ec2.AssociateAddressInput{
			AllocationId:       allocation.AllocationId,
			NetworkInterfaceId: aws.String(eniID),
			PrivateIpAddress:   aws.String(privateIP),
		})
		return err
	})
	if err != nil {
		// Do not leak the allocation
		if releaseErr := m.release(ctx, aws.ToString(allocation.AllocationId)); releaseErr != nil {
			log.Error(releaseErr, "Failed to release unassociated address", "allocationID", aws.ToString(allocation.AllocationId))
		}
		return "", err
	}

	publicIP := aws.ToString(allocation.PublicIp)
	log.Info("Mapped public address to ENI", "publicIP", publicIP)
	return publicIP, nil
}

// ReleasePublicAddress disassociates and releases an Elastic IP
func (m *EC2ENIManager) ReleasePublicAddress(ctx context.Context, association *types.NetworkInterfaceAssociation) error {
	if association == nil || association.AllocationId == nil {
		return nil
	}
	log := m.Logger.WithValues("publicIP", aws.ToString(association.PublicIp))

	if association.AssociationId != nil {
		err := m.caller.callWithRetry(ctx, log, "DisassociateAddress", func(ctx context.Context) error {
			_, err := m.EC2.DisassociateAddress(ctx, &ec2.DisassociateAddressInput{AssociationId: association.AssociationId})
			return err
		})
		if err != nil && !api.IsNotFound(err) {
			return err
		}
	}

	if err := m.release(ctx, aws.ToString(association.AllocationId)); err != nil && !api.IsNotFound(err) {
		return err
	}
	log.Info("Released public address")
	return nil
}

func (m *EC2ENIManager) release(ctx context.Context, allocationID string) error {
	return m.caller.callWithRetry(ctx, m.Logger, "ReleaseAddress", func(ctx context.Context) error {
		_, err := m.EC2.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{AllocationId: aws.String(allocationID)})
		return err
	})
}
