package aws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// EC2InstanceDescriber handles EC2 instance description operations
type EC2InstanceDescriber struct {
	ec2Client EC2API
	logger    logr.Logger
	region    string
	caller    *caller
}

// NewEC2InstanceDescriber creates a new EC2InstanceDescriber
func NewEC2InstanceDescriber(ec2Client EC2API, c *caller, region string, logger logr.Logger) *EC2InstanceDescriber {
	return &EC2InstanceDescriber{
		ec2Client: ec2Client,
		logger:    logger.WithName("instance-describer"),
		region:    region,
		caller:    c,
	}
}

// DescribeInstance describes an EC2 instance. EC2 instances always use
// per-instance interfaces.
func (d *EC2InstanceDescriber) DescribeInstance(ctx context.Context, instanceID string) (*netif.Instance, error) {
	log := d.logger.WithValues("instanceID", instanceID)
	log.V(1).Info("Describing EC2 instance")

	input := &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}

	var result *ec2.DescribeInstancesOutput
	err := d.caller.callWithRetry(ctx, log, "DescribeInstances", func(ctx context.Context) error {
		var err error
		result, err = d.ec2Client.DescribeInstances(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(result.Reservations) == 0 || len(result.Reservations[0].Instances) == 0 {
		return nil, api.NewStatusError(http.StatusNotFound, fmt.Sprintf("instance %s not found", instanceID))
	}

	instance := toInstance(result.Reservations[0].Instances[0], d.region)
	log.V(1).Info("Found EC2 instance", "label", instance.Label)
	return &instance, nil
}
