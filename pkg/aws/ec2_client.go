package aws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/util"
)

// Backend is a facade that implements api.InfraAPI on EC2 by delegating to
// specialized components
type Backend struct {
	// Logger for structured logging
	Logger logr.Logger

	// Component implementations
	eniManager            ENIManager
	eniDescriber          ENIDescriber
	subnetResolver        SubnetResolver
	securityGroupResolver SecurityGroupResolver
	instanceDescriber     InstanceDescriber

	detachTimeout time.Duration
	tags          map[string]string
}

// defaultENITags mark ENIs created by this backend
var defaultENITags = map[string]string{"managed-by": "subnetctl"}

var _ api.InfraAPI = (*Backend)(nil)

// NewBackendFromClient creates a backend around an existing EC2 client.
// metrics may be nil.
func NewBackendFromClient(ec2Client EC2API, cfg BackendConfig, logger logr.Logger, metrics *observability.Metrics) *Backend {
	cfg = cfg.withDefaults()
	log := logger.WithName("aws-ec2-backend")
	c := newCaller(cfg, observability.NewStructuredLogger(log, metrics))

	return &Backend{
		Logger:                log,
		eniManager:            NewEC2ENIManager(ec2Client, c, log),
		eniDescriber:          NewEC2ENIDescriber(ec2Client, c, log),
		subnetResolver:        NewEC2SubnetResolver(ec2Client, c, cfg.Region, log),
		securityGroupResolver: NewEC2SecurityGroupResolver(ec2Client, c, cfg.SecurityGroupCacheTTL, log),
		instanceDescriber:     NewEC2InstanceDescriber(ec2Client, c, cfg.Region, log),
		detachTimeout:         cfg.DetachTimeout,
		tags:                  util.MergeMaps(defaultENITags, cfg.Tags),
	}
}

// GetInstance delegates to InstanceDescriber
func (b *Backend) GetInstance(ctx context.Context, instanceID string) (*netif.Instance, error) {
	return b.instanceDescriber.DescribeInstance(ctx, instanceID)
}

// ListConfigs is not supported on EC2
func (b *Backend) ListConfigs(ctx context.Context, instanceID string) ([]netif.ConfigProfile, error) {
	return nil, errLegacyUnsupported()
}

// ListInterfaces returns the ENIs attached to an instance
func (b *Backend) ListInterfaces(ctx context.Context, instanceID string) ([]netif.ModernInterface, error) {
	enis, err := b.eniDescriber.ListInstanceENIs(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	ifaces := make([]netif.ModernInterface, 0, len(enis))
	for _, eni := range enis {
		ifaces = append(ifaces, toModernInterface(eni))
	}
	return ifaces, nil
}

// AppendConfigInterface is not supported on EC2
func (b *Backend) AppendConfigInterface(ctx context.Context, instanceID, configID string, payload api.LegacyInterfacePayload) (*netif.LegacyInterface, error) {
	return nil, errLegacyUnsupported()
}

// CreateInterface creates an ENI in the payload's subnet and attaches it at
// the instance's next free device index. A NAT 1:1 request maps a new
// Elastic IP to the primary address.
func (b *Backend) CreateInterface(ctx context.Context, instanceID string, payload api.ModernInterfacePayload) (*netif.ModernInterface, error) {
	spec, nat, err := b.specFromPayload(ctx, payload)
	if err != nil {
		return nil, err
	}

	log := b.Logger.WithValues("instanceID", instanceID, "subnetID", spec.SubnetID)

	existing, err := b.eniDescriber.ListInstanceENIs(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	nextIndex := 0
	for _, eni := range existing {
		if idx := int(deviceIndex(eni)); idx >= nextIndex {
			nextIndex = idx + 1
		}
	}

	eni, err := b.eniManager.CreateENI(ctx, spec)
	if err != nil {
		return nil, err
	}
	eniID := aws.ToString(eni.NetworkInterfaceId)

	if _, err := b.eniManager.AttachENI(ctx, eniID, instanceID, nextIndex); err != nil {
		// Clean up the unattached ENI
		if cleanupErr := b.eniManager.DeleteENI(ctx, eniID); cleanupErr != nil {
			log.Error(cleanupErr, "Failed to delete ENI after attachment failure", "eniID", eniID)
		}
		return nil, err
	}

	if nat != "" {
		if _, err := b.eniManager.AssociatePublicAddress(ctx, eniID, aws.ToString(eni.PrivateIpAddress)); err != nil {
			// The interface is attached; report it without the mapping
			log.Error(err, "Failed to map public address to ENI", "eniID", eniID)
		}
	}

	current, err := b.eniDescriber.DescribeENI(ctx, eniID)
	if err != nil {
		log.Error(err, "Failed to describe attached ENI, returning creation result", "eniID", eniID)
		current = eni
	}

	iface := toModernInterface(*current)
	iface.InstanceID = instanceID
	return &iface, nil
}

// specFromPayload validates a modern payload against what EC2 can express
func (b *Backend) specFromPayload(ctx context.Context, payload api.ModernInterfacePayload) (ENISpec, string, error) {
	if payload.Public != nil || payload.VLAN != nil {
		return ENISpec{}, "", &api.Errors{
			StatusCode: http.StatusBadRequest,
			List:       []api.APIError{{Reason: "only VPC interfaces are supported by this backend"}},
		}
	}
	if payload.VPC == nil || payload.VPC.SubnetID == "" {
		return ENISpec{}, "", api.NewFieldError("vpc.subnet_id", "subnet is required")
	}
	if len(payload.VPC.IPv4.Addresses) > 1 {
		return ENISpec{}, "", api.NewFieldError("vpc.ipv4.addresses", "only one address can be requested")
	}

	spec := ENISpec{
		SubnetID:    payload.VPC.SubnetID,
		Description: fmt.Sprintf("VPC interface in subnet %s", payload.VPC.SubnetID),
		AssignIPv6:  payload.VPC.IPv6 != nil,
		Tags:        b.tags,
	}

	nat := ""
	if len(payload.VPC.IPv4.Addresses) == 1 {
		addr := payload.VPC.IPv4.Addresses[0]
		if addr.Address != netif.AutoAddress {
			spec.PrivateIPAddress = addr.Address
		}
		nat = addr.NAT1To1Address
	}

	for _, r := range payload.VPC.IPv4.Ranges {
		spec.IPv4Prefixes = append(spec.IPv4Prefixes, r.Range)
	}

	if payload.FirewallID != nil && *payload.FirewallID != "" {
		sgID, err := b.securityGroupResolver.ResolveSecurityGroupID(ctx, *payload.FirewallID)
		if err != nil {
			return ENISpec{}, "", err
		}
		spec.SecurityGroupIDs = []string{sgID}
	}

	return spec, nat, nil
}

// DeleteInterface detaches and deletes an ENI of the instance. A missing
// ENI is reported as a 404.
func (b *Backend) DeleteInterface(ctx context.Context, instanceID, configID, interfaceID string) error {
	if configID != "" {
		return errLegacyUnsupported()
	}

	log := b.Logger.WithValues("instanceID", instanceID, "eniID", interfaceID)

	eni, err := b.eniDescriber.DescribeENI(ctx, interfaceID)
	if err != nil {
		return err
	}

	if eni.Attachment != nil {
		if aws.ToString(eni.Attachment.InstanceId) != instanceID {
			return api.NewStatusError(http.StatusNotFound, fmt.Sprintf("network interface %s is not attached to instance %s", interfaceID, instanceID))
		}
		if deviceIndex(*eni) == 0 {
			return api.NewStatusError(http.StatusBadRequest, "the primary network interface cannot be deleted")
		}
	}

	if err := b.eniManager.ReleasePublicAddress(ctx, eni.Association); err != nil {
		return err
	}

	if eni.Attachment != nil && eni.Attachment.AttachmentId != nil {
		if err := b.eniManager.DetachENI(ctx, aws.ToString(eni.Attachment.AttachmentId), false); err != nil {
			return err
		}
		if err := b.eniDescriber.WaitForENIDetachment(ctx, interfaceID, b.detachTimeout); err != nil {
			return err
		}
	}

	if err := b.eniManager.DeleteENI(ctx, interfaceID); err != nil {
		return err
	}

	log.Info("Deleted interface")
	return nil
}

// GetVPC delegates to SubnetResolver
func (b *Backend) GetVPC(ctx context.Context, vpcID string) (*netif.VPC, error) {
	return b.subnetResolver.GetVPC(ctx, vpcID)
}

// GetSubnet delegates to SubnetResolver
func (b *Backend) GetSubnet(ctx context.Context, vpcID, subnetID string) (*netif.Subnet, error) {
	return b.subnetResolver.GetSubnet(ctx, vpcID, subnetID)
}
