package aws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/karlseguin/ccache/v2"
)

// EC2SecurityGroupResolver implements the SecurityGroupResolver interface.
// A firewall is either a security group ID or a group name.
type EC2SecurityGroupResolver struct {
	// EC2 is the underlying EC2 client
	EC2 EC2API
	// Logger is used for structured logging
	Logger logr.Logger
	caller *caller

	// Cache for security group information, name -> ID
	sgCache         *ccache.Cache
	cacheExpiration time.Duration
}

// NewEC2SecurityGroupResolver creates a new EC2SecurityGroupResolver
func NewEC2SecurityGroupResolver(ec2Client EC2API, c *caller, ttl time.Duration, logger logr.Logger) *EC2SecurityGroupResolver {
	return &EC2SecurityGroupResolver{
		EC2:             ec2Client,
		Logger:          logger.WithName("ec2-sg-resolver"),
		caller:          c,
		sgCache:         ccache.New(ccache.Configure().MaxSize(256)),
		cacheExpiration: ttl,
	}
}

// ResolveSecurityGroupID returns firewall unchanged when it is already a
// security group ID, otherwise looks it up by group name and then by Name tag
func (r *EC2SecurityGroupResolver) ResolveSecurityGroupID(ctx context.Context, firewall string) (string, error) {
	if strings.HasPrefix(firewall, "sg-") {
		return firewall, nil
	}

	log := r.Logger.WithValues("securityGroupName", firewall)

	// Check cache first
	if item := r.sgCache.Get(firewall); item != nil && !item.Expired() {
		sgID := item.Value().(string)
		log.V(1).Info("Using cached security group ID", "securityGroupID", sgID)
		return sgID, nil
	}

	log.Info("Looking up security group ID by name")

	// Try both GroupName and tag:Name
	for _, filter := range []string{"group-name", "tag:Name"} {
		input := &ec2.DescribeSecurityGroupsInput{
			Filters: []types.Filter{
				{
					Name:   aws.String(filter),
					Values: []string{firewall},
				},
			},
		}

		var result *ec2.DescribeSecurityGroupsOutput
		err := r.caller.callWithRetry(ctx, log, "DescribeSecurityGroups", func(ctx context.Context) error {
			var err error
			result, err = r.EC2.DescribeSecurityGroups(ctx, input)
			return err
		})
		if err != nil {
			return "", err
		}
		if len(result.SecurityGroups) == 0 {
			continue
		}

		if len(result.SecurityGroups) > 1 {
			log.Info("Multiple security groups found with the same name, using the first one")
		}

		sgID := aws.ToString(result.SecurityGroups[0].GroupId)
		log.Info("Found security group ID", "securityGroupID", sgID)
		r.sgCache.Set(firewall, sgID, r.cacheExpiration)
		return sgID, nil
	}

	return "", &api.Errors{
		StatusCode: http.StatusBadRequest,
		List:       []api.APIError{{Field: "firewall_id", Reason: fmt.Sprintf("no security group found with name: %s", firewall)}},
	}
}
