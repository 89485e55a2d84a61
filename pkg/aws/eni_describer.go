package aws

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/retry"
)

// EC2ENIDescriber implements the ENIDescriber interface
type EC2ENIDescriber struct {
	// EC2 is the underlying EC2 client
	EC2 EC2API
	// Logger is used for structured logging
	Logger logr.Logger
	caller *caller
}

// NewEC2ENIDescriber creates a new EC2ENIDescriber
func NewEC2ENIDescriber(ec2Client EC2API, c *caller, logger logr.Logger) *EC2ENIDescriber {
	return &EC2ENIDescriber{
		EC2:    ec2Client,
		Logger: logger.WithName("ec2-eni-describer"),
		caller: c,
	}
}

// DescribeENI describes an ENI. A missing ENI is reported as a 404.
func (d *EC2ENIDescriber) DescribeENI(ctx context.Context, eniID string) (*types.NetworkInterface, error) {
	log := d.Logger.WithValues("eniID", eniID)
	log.V(1).Info("Describing ENI")

	input := &ec2.DescribeNetworkInterfacesInput{
		NetworkInterfaceIds: []string{eniID},
	}

	var result *ec2.DescribeNetworkInterfacesOutput
	err := d.caller.callWithRetry(ctx, log, "DescribeNetworkInterfaces", func(ctx context.Context) error {
		var err error
		result, err = d.EC2.DescribeNetworkInterfaces(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(result.NetworkInterfaces) == 0 {
		return nil, api.NewStatusError(http.StatusNotFound, fmt.Sprintf("network interface %s not found", eniID))
	}
	return &result.NetworkInterfaces[0], nil
}

// ListInstanceENIs returns the ENIs attached to an instance ordered by
// device index
func (d *EC2ENIDescriber) ListInstanceENIs(ctx context.Context, instanceID string) ([]types.NetworkInterface, error) {
	log := d.Logger.WithValues("instanceID", instanceID)
	log.V(1).Info("Listing ENIs attached to instance")

	input := &ec2.DescribeNetworkInterfacesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("attachment.instance-id"),
				Values: []string{instanceID},
			},
		},
	}

	enis, err := describeAllENIs(ctx, d.caller, d.EC2, log, input)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(enis, func(i, j int) bool {
		return deviceIndex(enis[i]) < deviceIndex(enis[j])
	})
	return enis, nil
}

// WaitForENIDetachment waits for an ENI to be detached
func (d *EC2ENIDescriber) WaitForENIDetachment(ctx context.Context, eniID string, timeout time.Duration) error {
	log := d.Logger.WithValues("eniID", eniID)
	log.Info("Waiting for ENI detachment to complete", "timeout", timeout)

	// Use exponential backoff for checking detachment status
	backoff := retry.DefaultBackoff()
	backoff.Duration = timeout / 10
	backoff.Factor = 1.5
	backoff.Cap = timeout

	operation := fmt.Sprintf("wait for ENI %s detachment", eniID)
	err := retry.Do(ctx, log, operation, backoff, nil, func(ctx context.Context) (bool, error) {
		eni, err := d.DescribeENI(ctx, eniID)
		if err != nil {
			// If the ENI is not found, it's considered detached
			if api.IsNotFound(err) {
				log.Info("ENI no longer exists")
				return true, nil
			}
			return false, err
		}

		if eni.Attachment == nil || eni.Status == types.NetworkInterfaceStatusAvailable {
			log.Info("ENI is now detached")
			return true, nil
		}

		log.V(1).Info("ENI is still attached, waiting...", "status", string(eni.Status))
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("failed to wait for ENI detachment: %w", err)
	}

	log.Info("ENI detachment completed")
	return nil
}

// describeAllENIs walks every page of a DescribeNetworkInterfaces query
func describeAllENIs(ctx context.Context, c *caller, client EC2API, log logr.Logger, input *ec2.DescribeNetworkInterfacesInput) ([]types.NetworkInterface, error) {
	var enis []types.NetworkInterface
	err := c.callWithRetry(ctx, log, "DescribeNetworkInterfaces", func(ctx context.Context) error {
		enis = nil
		paginator := ec2.NewDescribeNetworkInterfacesPaginator(client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			enis = append(enis, page.NetworkInterfaces...)
		}
		return nil
	})
	return enis, err
}

func deviceIndex(eni types.NetworkInterface) int32 {
	if eni.Attachment == nil {
		return -1
	}
	return aws.ToInt32(eni.Attachment.DeviceIndex)
}
