// Package config loads the settings of the subnet assignment tooling from
// defaults, an optional .env file and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects the infrastructure API implementation
type Backend string

const (
	// BackendREST talks JSON to the v4 infrastructure API
	BackendREST Backend = "rest"
	// BackendEC2 serves modern interfaces on Amazon EC2
	BackendEC2 Backend = "ec2"
)

// Config holds configuration for the assignment and unassignment workflows
type Config struct {
	// Backend is either "rest" or "ec2"
	Backend Backend
	// Base URL and bearer token of the REST API
	APIURL   string
	APIToken string

	// AWS region and optional static credentials for the ec2 backend
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Timeout for a single remote request
	RequestTimeout time.Duration
	// Client-side rate limit for remote requests
	RequestsPerSecond float64
	RequestBurst      int
	// Maximum concurrent deletions in a batch unassignment; 0 dispatches all jobs at once
	MaxConcurrentUnassign int
	// Whether IPv6 subnet capacity and SLAAC requests are available
	DualStackEnabled bool
	// How long cached reads stay fresh
	CacheTTL time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend:               BackendREST,
		APIURL:                "https://api.linode.com/v4",
		RequestTimeout:        30 * time.Second,
		RequestsPerSecond:     10,
		RequestBurst:          20,
		MaxConcurrentUnassign: 0,
		DualStackEnabled:      false,
		CacheTTL:              5 * time.Minute,
	}
}

// LoadEnvFile loads variables from a .env file into the process
// environment. Variables that are already set are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables over the defaults
func Load() (*Config, error) {
	config := DefaultConfig()

	if backend := os.Getenv("INFRA_BACKEND"); backend != "" {
		config.Backend = Backend(backend)
	}
	if url := os.Getenv("INFRA_API_URL"); url != "" {
		config.APIURL = url
	}
	config.APIToken = os.Getenv("INFRA_API_TOKEN")

	if region := os.Getenv("AWS_REGION"); region != "" {
		config.AWSRegion = region
	}
	config.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	config.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if timeoutStr := os.Getenv("REQUEST_TIMEOUT"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %v", err)
		}
		config.RequestTimeout = timeout
	}

	if rateStr := os.Getenv("REQUESTS_PER_SECOND"); rateStr != "" {
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUESTS_PER_SECOND: %v", err)
		}
		config.RequestsPerSecond = rate
	}

	if burstStr := os.Getenv("REQUEST_BURST"); burstStr != "" {
		burst, err := strconv.Atoi(burstStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_BURST: %v", err)
		}
		config.RequestBurst = burst
	}

	if maxStr := os.Getenv("MAX_CONCURRENT_UNASSIGN"); maxStr != "" {
		max, err := strconv.Atoi(maxStr)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_CONCURRENT_UNASSIGN: %v", err)
		}
		config.MaxConcurrentUnassign = max
	}

	if dualStr := os.Getenv("DUAL_STACK_ENABLED"); dualStr != "" {
		dual, err := strconv.ParseBool(dualStr)
		if err != nil {
			return nil, fmt.Errorf("invalid DUAL_STACK_ENABLED: %v", err)
		}
		config.DualStackEnabled = dual
	}

	if ttlStr := os.Getenv("CACHE_TTL"); ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_TTL: %v", err)
		}
		config.CacheTTL = ttl
	}

	return config, nil
}

// Validate checks that the configuration can build a backend
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendREST:
		if c.APIURL == "" {
			return fmt.Errorf("INFRA_API_URL is required for the %s backend", c.Backend)
		}
		if c.APIToken == "" {
			return fmt.Errorf("INFRA_API_TOKEN is required for the %s backend", c.Backend)
		}
	case BackendEC2:
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required for the %s backend", c.Backend)
		}
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	default:
		return fmt.Errorf("unknown backend %q, expected %q or %q", c.Backend, BackendREST, BackendEC2)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", c.RequestTimeout)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("REQUESTS_PER_SECOND must be positive, got %v", c.RequestsPerSecond)
	}
	if c.RequestBurst <= 0 {
		return fmt.Errorf("REQUEST_BURST must be positive, got %d", c.RequestBurst)
	}
	if c.MaxConcurrentUnassign < 0 {
		return fmt.Errorf("MAX_CONCURRENT_UNASSIGN must not be negative, got %d", c.MaxConcurrentUnassign)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.CacheTTL)
	}
	return nil
}
