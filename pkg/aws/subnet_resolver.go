package aws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// EC2SubnetResolver implements the SubnetResolver interface
type EC2SubnetResolver struct {
	// EC2 is the underlying EC2 client
	EC2 EC2API
	// Logger is used for structured logging
	Logger logr.Logger
	region string
	caller *caller
}

// NewEC2SubnetResolver creates a new EC2SubnetResolver
func NewEC2SubnetResolver(ec2Client EC2API, c *caller, region string, logger logr.Logger) *EC2SubnetResolver {
	return &EC2SubnetResolver{
		EC2:    ec2Client,
		Logger: logger.WithName("ec2-subnet-resolver"),
		region: region,
		caller: c,
	}
}

// GetVPC describes a VPC, its subnets and the instances attached to each
func (r *EC2SubnetResolver) GetVPC(ctx context.Context, vpcID string) (*netif.VPC, error) {
	log := r.Logger.WithValues("vpcID", vpcID)
	log.V(1).Info("Describing VPC")

	var vpcs *ec2.DescribeVpcsOutput
	err := r.caller.callWithRetry(ctx, log, "DescribeVpcs", func(ctx context.Context) error {
		var err error
		vpcs, err = r.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vpcs.Vpcs) == 0 {
		return nil, api.NewStatusError(http.StatusNotFound, fmt.Sprintf("vpc %s not found", vpcID))
	}

	subnets, err := r.describeSubnets(ctx, log, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	if err != nil {
		return nil, err
	}

	attached, err := r.attachedInstances(ctx, log, "vpc-id", vpcID)
	if err != nil {
		return nil, err
	}

	vpc := toVPC(vpcs.Vpcs[0], r.region)
	for _, s := range subnets {
		vpc.Subnets = append(vpc.Subnets, toSubnet(s, attached[aws.ToString(s.SubnetId)]))
	}
	return &vpc, nil
}

// GetSubnet describes one subnet of a VPC
func (r *EC2SubnetResolver) GetSubnet(ctx context.Context, vpcID, subnetID string) (*netif.Subnet, error) {
	log := r.Logger.WithValues("vpcID", vpcID, "subnetID", subnetID)
	log.V(1).Info("Describing subnet")

	subnets, err := r.describeSubnets(ctx, log, &ec2.DescribeSubnetsInput{SubnetIds: []string{subnetID}})
	if err != nil {
		return nil, err
	}
	if len(subnets) == 0 || aws.ToString(subnets[0].VpcId) != vpcID {
		return nil, api.NewStatusError(http.StatusNotFound, fmt.Sprintf("subnet %s not found in vpc %s", subnetID, vpcID))
	}

	attached, err := r.attachedInstances(ctx, log, "subnet-id", subnetID)
	if err != nil {
		return nil, err
	}

	subnet := toSubnet(subnets[0], attached[subnetID])
	return &subnet, nil
}

func (r *EC2SubnetResolver) describeSubnets(ctx context.Context, log logr.Logger, input *ec2.DescribeSubnetsInput) ([]types.Subnet, error) {
	var subnets []types.Subnet
	err := r.caller.callWithRetry(ctx, log, "DescribeSubnets", func(ctx context.Context) error {
		subnets = nil
		paginator := ec2.NewDescribeSubnetsPaginator(r.EC2, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			subnets = append(subnets, page.Subnets...)
		}
		return nil
	})
	return subnets, err
}

// attachedInstances maps subnet IDs to the instances with an ENI in them
func (r *EC2SubnetResolver) attachedInstances(ctx context.Context, log logr.Logger, filter, value string) (map[string][]string, error) {
	enis, err := describeAllENIs(ctx, r.caller, r.EC2, log, &ec2.DescribeNetworkInterfacesInput{
		Filters: []types.Filter{{Name: aws.String(filter), Values: []string{value}}},
	})
	if err != nil {
		return nil, err
	}

	attached := make(map[string][]string)
	seen := make(map[string]bool)
	for _, eni := range enis {
		if eni.Attachment == nil || eni.Attachment.InstanceId == nil {
			continue
		}
		subnetID := aws.ToString(eni.SubnetId)
		instanceID := aws.ToString(eni.Attachment.InstanceId)
		key := subnetID + "/" + instanceID
		if seen[key] {
			continue
		}
		seen[key] = true
		attached[subnetID] = append(attached[subnetID], instanceID)
	}
	return attached, nil
}
