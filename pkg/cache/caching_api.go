package cache

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// CachingAPI serves reads of an InfraAPI from a Store. Writes go straight
// to the wrapped API; callers mark the affected reads stale with an
// Invalidator once a workflow completes. Cached values are shared, so
// callers must not modify what they get back.
type CachingAPI struct {
	api.InfraAPI
	store  *Store
	logger logr.Logger
}

var _ api.InfraAPI = (*CachingAPI)(nil)

// NewCachingAPI wraps next with a read-through cache
func NewCachingAPI(next api.InfraAPI, store *Store, logger logr.Logger) *CachingAPI {
	return &CachingAPI{
		InfraAPI: next,
		store:    store,
		logger:   logger.WithName("caching-api"),
	}
}

// GetInstance returns a cached instance
func (c *CachingAPI) GetInstance(ctx context.Context, instanceID string) (*netif.Instance, error) {
	value, err := c.fetch(InstanceKey(instanceID), func() (interface{}, error) {
		return c.InfraAPI.GetInstance(ctx, instanceID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*netif.Instance), nil
}

// ListConfigs returns the cached configuration profiles of an instance
func (c *CachingAPI) ListConfigs(ctx context.Context, instanceID string) ([]netif.ConfigProfile, error) {
	value, err := c.fetch(ConfigsKey(instanceID), func() (interface{}, error) {
		return c.InfraAPI.ListConfigs(ctx, instanceID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]netif.ConfigProfile), nil
}

// ListInterfaces returns the cached modern interfaces of an instance
func (c *CachingAPI) ListInterfaces(ctx context.Context, instanceID string) ([]netif.ModernInterface, error) {
	value, err := c.fetch(InterfacesKey(instanceID), func() (interface{}, error) {
		return c.InfraAPI.ListInterfaces(ctx, instanceID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]netif.ModernInterface), nil
}

// GetVPC returns a cached VPC aggregate
func (c *CachingAPI) GetVPC(ctx context.Context, vpcID string) (*netif.VPC, error) {
	value, err := c.fetch(VPCKey(vpcID), func() (interface{}, error) {
		return c.InfraAPI.GetVPC(ctx, vpcID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*netif.VPC), nil
}

// GetSubnet returns a cached subnet
func (c *CachingAPI) GetSubnet(ctx context.Context, vpcID, subnetID string) (*netif.Subnet, error) {
	value, err := c.fetch(SubnetKey(vpcID, subnetID), func() (interface{}, error) {
		return c.InfraAPI.GetSubnet(ctx, vpcID, subnetID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*netif.Subnet), nil
}

func (c *CachingAPI) fetch(key string, load func() (interface{}, error)) (interface{}, error) {
	if value, ok := c.store.Get(key); ok {
		c.logger.V(1).Info("Cache hit", "key", key)
		return value, nil
	}
	c.logger.V(1).Info("Cache miss", "key", key)
	return c.store.Fetch(key, load)
}
