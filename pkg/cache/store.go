// Package cache keeps recently read infrastructure state and marks it stale
// when an assignment or unassignment changes it.
package cache

import (
	"fmt"
	"time"

	"github.com/karlseguin/ccache/v2"
)

// Kinds of cached queries
const (
	KindVPC        = "vpc"
	KindSubnet     = "subnet"
	KindInstance   = "instance"
	KindConfigs    = "configs"
	KindInterfaces = "interfaces"
)

// VPCKey is the key of a VPC aggregate with all of its subnets
func VPCKey(vpcID string) string {
	return fmt.Sprintf("%s:%s", KindVPC, vpcID)
}

// SubnetKey is the key of one subnet and its attached instances
func SubnetKey(vpcID, subnetID string) string {
	return fmt.Sprintf("%s:%s/%s", KindSubnet, vpcID, subnetID)
}

// InstanceKey is the key of an instance
func InstanceKey(instanceID string) string {
	return fmt.Sprintf("%s:%s", KindInstance, instanceID)
}

// ConfigsKey is the key of an instance's configuration profile list
func ConfigsKey(instanceID string) string {
	return fmt.Sprintf("%s:%s", KindConfigs, instanceID)
}

// InterfacesKey is the key of an instance's modern interface list
func InterfacesKey(instanceID string) string {
	return fmt.Sprintf("%s:%s", KindInterfaces, instanceID)
}

// Store is a TTL cache of query results
type Store struct {
	cache *ccache.Cache
	ttl   time.Duration
}

// NewStore creates a store holding at most maxSize entries for ttl each
func NewStore(maxSize int64, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Store{
		cache: ccache.New(ccache.Configure().MaxSize(maxSize)),
		ttl:   ttl,
	}
}

// Get returns a fresh cached value
func (s *Store) Get(key string) (interface{}, bool) {
	item := s.cache.Get(key)
	if item == nil || item.Expired() {
		return nil, false
	}
	return item.Value(), true
}

// Set caches value under key
func (s *Store) Set(key string, value interface{}) {
	s.cache.Set(key, value, s.ttl)
}

// Fetch returns the cached value for key, or calls fetch and caches its
// result. Errors are not cached.
func (s *Store) Fetch(key string, fetch func() (interface{}, error)) (interface{}, error) {
	item, err := s.cache.Fetch(key, s.ttl, fetch)
	if err != nil {
		return nil, err
	}
	return item.Value(), nil
}

// Delete marks key stale. It reports whether a value was cached.
func (s *Store) Delete(key string) bool {
	return s.cache.Delete(key)
}

// Len returns the number of cached entries, fresh or not
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Stop stops the cache's background worker
func (s *Store) Stop() {
	s.cache.Stop()
}
