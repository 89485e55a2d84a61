// Package lib provides a clean API for using the subnet assignment workflows
// as a library in other Go projects. It wires the remote backend, the query
// cache, the assignment orchestrator and the unassignment processor behind
// a single Manager.
package lib

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/addrspace"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/assign"
	awsbackend "github.com/johnlam90/vpc-subnet-assigner/pkg/aws"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/cache"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/config"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/unassign"
)

// cacheSize bounds the number of cached query results
const cacheSize = 1000

// Manager assigns instances to VPC subnets and detaches them again
type Manager struct {
	client       api.InfraAPI
	store        *cache.Store
	calculator   addrspace.Calculator
	orchestrator *assign.Orchestrator
	processor    *unassign.Processor
	resolver     *netif.Resolver
	config       *config.Config
	logger       logr.Logger
}

// Options contains optional collaborators of a Manager
type Options struct {
	// Metrics may be nil
	Metrics *observability.Metrics
	// Booted supplies booted configuration profiles; nil treats every boot
	// state as unknown
	Booted netif.BootedConfigSource
	// OnStateChange observes assignment state transitions
	OnStateChange func(from, to assign.State)
}

// NewBackend creates the remote API selected by cfg.Backend
func NewBackend(ctx context.Context, cfg *config.Config, logger logr.Logger, metrics *observability.Metrics) (api.InfraAPI, error) {
	switch cfg.Backend {
	case config.BackendEC2:
		backend, err := awsbackend.NewBackend(ctx, awsbackend.BackendConfig{
			Region:            cfg.AWSRegion,
			AccessKeyID:       cfg.AWSAccessKeyID,
			SecretAccessKey:   cfg.AWSSecretAccessKey,
			Timeout:           cfg.RequestTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.RequestBurst,
		}, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create EC2 backend: %w", err)
		}
		return backend, nil
	case config.BackendREST:
		clientCfg := api.DefaultClientConfig()
		clientCfg.BaseURL = cfg.APIURL
		clientCfg.Token = cfg.APIToken
		clientCfg.Timeout = cfg.RequestTimeout
		clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
		clientCfg.Burst = cfg.RequestBurst
		client, err := api.NewClient(clientCfg, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create REST client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// NewManager validates cfg and creates a Manager over the backend it selects
func NewManager(ctx context.Context, cfg *config.Config, logger logr.Logger, opts Options) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	backend, err := NewBackend(ctx, cfg, logger, opts.Metrics)
	if err != nil {
		return nil, err
	}
	return NewManagerWithClient(backend, cfg, logger, opts)
}

// NewManagerWithClient creates a Manager over an existing remote API. Reads
// are cached for cfg.CacheTTL and invalidated after every change.
func NewManagerWithClient(client api.InfraAPI, cfg *config.Config, logger logr.Logger, opts Options) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	store := cache.NewStore(cacheSize, cfg.CacheTTL)
	cached := cache.NewCachingAPI(client, store, logger)
	invalidator := cache.NewInvalidator(store, logger, opts.Metrics)

	return &Manager{
		client:     cached,
		store:      store,
		calculator: addrspace.Calculator{DualStack: cfg.DualStackEnabled},
		orchestrator: assign.NewOrchestrator(cached, logger, assign.Options{
			DualStack:     cfg.DualStackEnabled,
			Invalidator:   invalidator,
			Metrics:       opts.Metrics,
			OnStateChange: opts.OnStateChange,
		}),
		processor: unassign.NewProcessor(cached, logger, unassign.Options{
			MaxConcurrent: cfg.MaxConcurrentUnassign,
			Invalidator:   invalidator,
			Booted:        opts.Booted,
			Metrics:       opts.Metrics,
		}),
		resolver: netif.NewResolver(cached, opts.Booted, logger),
		config:   cfg,
		logger:   logger.WithName("subnet-manager"),
	}, nil
}

// Close releases the query cache
func (m *Manager) Close() {
	m.store.Stop()
}

// SubnetCapacity returns the address capacity of a subnet
func (m *Manager) SubnetCapacity(ctx context.Context, vpcID, subnetID string) (addrspace.Capacity, error) {
	if vpcID == "" || subnetID == "" {
		return addrspace.Capacity{}, fmt.Errorf("VPC ID and subnet ID cannot be empty")
	}

	subnet, err := m.client.GetSubnet(ctx, vpcID, subnetID)
	if err != nil {
		return addrspace.Capacity{}, err
	}
	return m.calculator.SubnetCapacity(*subnet), nil
}

// RecommendSubnetCIDR suggests the next free /24 for a new subnet of a VPC
func (m *Manager) RecommendSubnetCIDR(ctx context.Context, vpcID, lastSuggested string) (string, error) {
	if vpcID == "" {
		return "", fmt.Errorf("VPC ID cannot be empty")
	}

	vpc, err := m.client.GetVPC(ctx, vpcID)
	if err != nil {
		return "", err
	}

	existing := make([]string, 0, len(vpc.Subnets))
	for _, s := range vpc.Subnets {
		existing = append(existing, s.IPv4CIDR)
	}

	recommended := addrspace.RecommendNextIPv4CIDR(lastSuggested, existing)
	if recommended == "" {
		return "", fmt.Errorf("VPC %s has no free /24 block left", vpcID)
	}
	return recommended, nil
}

// Assign attaches an instance to a subnet
func (m *Manager) Assign(ctx context.Context, req netif.AssignmentRequest) (*assign.Assignment, error) {
	if req.InstanceID == "" {
		return nil, api.NewFieldError("instanceId", "instance ID cannot be empty")
	}
	if req.SubnetID == "" {
		return nil, api.NewFieldError("subnetId", "subnet ID cannot be empty")
	}
	return m.orchestrator.Assign(ctx, req)
}

// Recent returns the assignments made through this Manager
func (m *Manager) Recent() *assign.RecentlyAssigned {
	return m.orchestrator.Recent()
}

// Unassign detaches every selected instance from a subnet. Instances that
// cannot be looked up are reported as failures; successes leave the
// selection. A nil selection unassigns nothing.
func (m *Manager) Unassign(ctx context.Context, selection *unassign.Selection, vpcID, subnetID string) unassign.BatchResult {
	if selection == nil {
		return unassign.BatchResult{}
	}
	var lookupFailures []unassign.JobFailure
	instances := make([]netif.Instance, 0, selection.Len())

	for _, id := range selection.IDs() {
		instance, err := m.client.GetInstance(ctx, id)
		if err != nil {
			lookupFailures = append(lookupFailures, unassign.JobFailure{InstanceID: id, Err: err})
			continue
		}
		instances = append(instances, *instance)
	}

	result := m.processor.Run(ctx, selection, vpcID, subnetID, instances)
	result.Failed = append(result.Failed, lookupFailures...)
	return result
}

// RoutingCheck resolves an instance's interface on a subnet. Callers use
// Resolution.UnrecommendedRouting to warn about the routing setup.
func (m *Manager) RoutingCheck(ctx context.Context, instanceID, subnetID string) (*netif.Resolution, error) {
	instance, err := m.client.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	res, err := m.resolver.ResolveActiveInterface(ctx, *instance, subnetID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, &netif.ResolutionError{
			InstanceID: instanceID,
			SubnetID:   subnetID,
			Reason:     "no interface is attached to the subnet",
		}
	}

	m.logger.V(1).Info("Checked routing",
		"instanceID", instanceID,
		"subnetID", subnetID,
		"interfaceID", res.Interface.InterfaceID(),
		"unrecommended", res.UnrecommendedRouting())
	return res, nil
}
