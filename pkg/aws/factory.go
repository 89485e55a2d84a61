package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
)

// NewBackend creates an EC2 backend from the AWS SDK default configuration.
// Static credentials in cfg take precedence over the default chain.
func NewBackend(ctx context.Context, cfg BackendConfig, logger logr.Logger, metrics *observability.Metrics) (*Backend, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewBackendFromClient(ec2.NewFromConfig(awsCfg), cfg, logger, metrics), nil
}
