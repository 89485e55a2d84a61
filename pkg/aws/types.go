package aws

import (
	"time"

	"github.com/johnlam90/vpc-subnet-assigner/pkg/retry"
	"k8s.io/apimachinery/pkg/util/wait"
)

// BackendConfig holds the settings of the EC2 backend
type BackendConfig struct {
	Region string
	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Backoff           wait.Backoff

	// DetachTimeout bounds the wait for an ENI to leave the in-use state
	DetachTimeout time.Duration
	// SecurityGroupCacheTTL is how long resolved security group names are kept
	SecurityGroupCacheTTL time.Duration

	// Tags are added to every ENI the backend creates. They override the
	// default managed-by tag.
	Tags map[string]string
}

// DefaultBackendConfig returns a configuration with sensible defaults
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Timeout:               30 * time.Second,
		RequestsPerSecond:     10,
		Burst:                 20,
		Backoff:               retry.DefaultBackoff(),
		DetachTimeout:         2 * time.Minute,
		SecurityGroupCacheTTL: 5 * time.Minute,
	}
}

// withDefaults fills unset fields from DefaultBackendConfig
func (c BackendConfig) withDefaults() BackendConfig {
	defaults := DefaultBackendConfig()
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = defaults.Burst
	}
	if c.Backoff.Steps <= 0 {
		c.Backoff = defaults.Backoff
	}
	if c.DetachTimeout <= 0 {
		c.DetachTimeout = defaults.DetachTimeout
	}
	if c.SecurityGroupCacheTTL <= 0 {
		c.SecurityGroupCacheTTL = defaults.SecurityGroupCacheTTL
	}
	return c
}

// ENISpec describes an ENI to create
type ENISpec struct {
	SubnetID         string
	PrivateIPAddress string // empty lets EC2 pick
	SecurityGroupIDs []string
	IPv4Prefixes     []string
	AssignIPv6       bool
	Description      string
	Tags             map[string]string
}
