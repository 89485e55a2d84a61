// Package aws serves the infrastructure API on Amazon EC2. An Elastic
// Network Interface attached to an instance is a modern, per-instance
// interface; configuration-profile interfaces do not exist on EC2.
//
// This package uses AWS SDK v2 for all AWS interactions.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/retry"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/wait"
)

const backendName = "ec2"

// EC2API is the subset of the EC2 client the backend calls.
// *ec2.Client satisfies it.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeNetworkInterfaces(ctx context.Context, params *ec2.DescribeNetworkInterfacesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error)
	CreateNetworkInterface(ctx context.Context, params *ec2.CreateNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.CreateNetworkInterfaceOutput, error)
	AttachNetworkInterface(ctx context.Context, params *ec2.AttachNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.AttachNetworkInterfaceOutput, error)
	DetachNetworkInterface(ctx context.Context, params *ec2.DetachNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.DetachNetworkInterfaceOutput, error)
	DeleteNetworkInterface(ctx context.Context, params *ec2.DeleteNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.DeleteNetworkInterfaceOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	AllocateAddress(ctx context.Context, params *ec2.AllocateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error)
	AssociateAddress(ctx context.Context, params *ec2.AssociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AssociateAddressOutput, error)
	DisassociateAddress(ctx context.Context, params *ec2.DisassociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateAddressOutput, error)
	ReleaseAddress(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error)
}

// caller applies rate limiting, timeouts, error mapping and call logging
// to every EC2 request. It is shared by all components of a backend.
type caller struct {
	rateLimiter *rate.Limiter
	timeout     time.Duration
	backoff     wait.Backoff
	obs         *observability.StructuredLogger
}

func newCaller(cfg BackendConfig, obs *observability.StructuredLogger) *caller {
	return &caller{
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		timeout:     cfg.Timeout,
		backoff:     cfg.Backoff,
		obs:         obs,
	}
}

// waitForRateLimit waits for rate limiter before making AWS API calls
func (c *caller) waitForRateLimit(ctx context.Context) error {
	return c.rateLimiter.Wait(ctx)
}

// call sends a single request. SDK errors are mapped to *api.Errors.
func (c *caller) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if err := c.waitForRateLimit(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	// Add context timeout for AWS operations
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := mapError(fn(callCtx))
	c.obs.LogAPICall(ctx, backendName, operation, time.Since(start), err)
	return err
}

// callWithRetry sends an idempotent request, retrying retryable failures
// with exponential backoff
func (c *caller) callWithRetry(ctx context.Context, log logr.Logger, operation string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, log, operation, c.backoff, nil, func(ctx context.Context) (bool, error) {
		return true, c.call(ctx, operation, fn)
	})
}
