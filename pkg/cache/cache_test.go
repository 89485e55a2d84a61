package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAPI() *api.MockClient {
	mock := api.NewMockClient()
	mock.AddVPC(netif.VPC{
		ID:     "vpc-1",
		Region: "us-east",
		Subnets: []netif.Subnet{
			{ID: "subnet-1", IPv4CIDR: "10.0.4.0/24"},
		},
	})
	mock.AddInstance(netif.Instance{ID: "100", InterfaceGeneration: netif.GenerationModern})
	mock.AddInstance(netif.Instance{ID: "200", InterfaceGeneration: netif.GenerationLegacy},
		netif.ConfigProfile{ID: "cfg-1", Label: "boot"})
	return mock
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "vpc:vpc-1", VPCKey("vpc-1"))
	assert.Equal(t, "subnet:vpc-1/subnet-1", SubnetKey("vpc-1", "subnet-1"))
	assert.Equal(t, "instance:100", InstanceKey("100"))
	assert.Equal(t, "configs:100", ConfigsKey("100"))
	assert.Equal(t, "interfaces:100", InterfacesKey("100"))
}

func TestStore_TTL(t *testing.T) {
	store := NewStore(10, 20*time.Millisecond)
	defer store.Stop()

	store.Set("k", "v")
	value, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", value)

	time.Sleep(40 * time.Millisecond)
	_, ok = store.Get("k")
	assert.False(t, ok, "expired entries are not served")
}

func TestStore_FetchDoesNotCacheErrors(t *testing.T) {
	store := NewStore(10, time.Minute)
	defer store.Stop()

	calls := 0
	failing := func() (interface{}, error) {
		calls++
		return nil, api.NewStatusError(http.StatusServiceUnavailable, "unavailable")
	}
	_, err := store.Fetch("k", failing)
	require.Error(t, err)
	_, err = store.Fetch("k", failing)
	require.Error(t, err)
	assert.Equal(t, 2, calls)

	value, err := store.Fetch("k", func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestCachingAPI_ServesRepeatedReadsFromCache(t *testing.T) {
	mock := newMockAPI()
	store := NewStore(100, time.Minute)
	defer store.Stop()
	cached := NewCachingAPI(mock, store, testr.New(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cached.GetVPC(ctx, "vpc-1")
		require.NoError(t, err)
		_, err = cached.GetSubnet(ctx, "vpc-1", "subnet-1")
		require.NoError(t, err)
		_, err = cached.ListInterfaces(ctx, "100")
		require.NoError(t, err)
		_, err = cached.ListConfigs(ctx, "200")
		require.NoError(t, err)
		_, err = cached.GetInstance(ctx, "100")
		require.NoError(t, err)
	}

	for _, op := range []string{"GetVPC", "GetSubnet", "ListInterfaces", "ListConfigs", "GetInstance"} {
		assert.Equal(t, 1, mock.Calls(op), op)
	}
}

func TestCachingAPI_ErrorsAreNotCached(t *testing.T) {
	mock := newMockAPI()
	store := NewStore(100, time.Minute)
	defer store.Stop()
	cached := NewCachingAPI(mock, store, testr.New(t))
	ctx := context.Background()

	_, err := cached.GetVPC(ctx, "vpc-missing")
	assert.True(t, api.IsNotFound(err))
	_, err = cached.GetVPC(ctx, "vpc-missing")
	assert.True(t, api.IsNotFound(err))
	assert.Equal(t, 2, mock.Calls("GetVPC"))
}

func TestInvalidator_RefreshesAffectedReads(t *testing.T) {
	mock := newMockAPI()
	store := NewStore(100, time.Minute)
	defer store.Stop()
	cached := NewCachingAPI(mock, store, testr.New(t))
	invalidator := NewInvalidator(store, testr.New(t), nil)
	ctx := context.Background()

	subnet, err := cached.GetSubnet(ctx, "vpc-1", "subnet-1")
	require.NoError(t, err)
	assert.Empty(t, subnet.AttachedInstanceIDs)
	_, err = cached.ListInterfaces(ctx, "100")
	require.NoError(t, err)

	// Writes pass through and leave the cached reads stale
	_, err = cached.CreateInterface(ctx, "100", api.ModernInterfacePayload{
		VPC: &api.ModernVPCPayload{
			SubnetID: "subnet-1",
			IPv4:     api.ModernIPv4Payload{Addresses: []api.ModernAddressPayload{{Address: netif.AutoAddress}}},
		},
	})
	require.NoError(t, err)

	subnet, err = cached.GetSubnet(ctx, "vpc-1", "subnet-1")
	require.NoError(t, err)
	assert.Empty(t, subnet.AttachedInstanceIDs, "still served from cache")

	invalidator.Invalidate(ctx, Affected{VPCID: "vpc-1", SubnetID: "subnet-1", InstanceID: "100"})

	subnet, err = cached.GetSubnet(ctx, "vpc-1", "subnet-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, subnet.AttachedInstanceIDs)

	ifaces, err := cached.ListInterfaces(ctx, "100")
	require.NoError(t, err)
	assert.Len(t, ifaces, 1)
	assert.Equal(t, 2, mock.Calls("ListInterfaces"))
}

func TestInvalidator_SelectsListByGeneration(t *testing.T) {
	store := NewStore(100, time.Minute)
	defer store.Stop()
	invalidator := NewInvalidator(store, testr.New(t), nil)
	ctx := context.Background()

	store.Set(ConfigsKey("200"), "configs")
	store.Set(InterfacesKey("200"), "interfaces")
	store.Set(InstanceKey("200"), "instance")

	invalidator.Invalidate(ctx, Affected{VPCID: "vpc-1", SubnetID: "subnet-1", InstanceID: "200", ConfigID: "cfg-1"})

	_, ok := store.Get(ConfigsKey("200"))
	assert.False(t, ok, "legacy change invalidates the profile list")
	_, ok = store.Get(InterfacesKey("200"))
	assert.True(t, ok)
	_, ok = store.Get(InstanceKey("200"))
	assert.True(t, ok, "the instance itself does not change")
}

func TestInvalidator_IsIdempotent(t *testing.T) {
	store := NewStore(100, time.Minute)
	defer store.Stop()
	metrics := observability.NewMetrics()
	invalidator := NewInvalidator(store, testr.New(t), metrics)
	ctx := context.Background()

	store.Set(VPCKey("vpc-9"), "vpc")
	affected := Affected{VPCID: "vpc-9", SubnetID: "subnet-9", InstanceID: "900"}

	before := testutil.ToFloat64(metrics.CacheInvalidationsTotal.WithLabelValues(KindVPC))
	assert.NotPanics(t, func() {
		invalidator.Invalidate(ctx, affected)
		invalidator.Invalidate(ctx, affected)
	})
	after := testutil.ToFloat64(metrics.CacheInvalidationsTotal.WithLabelValues(KindVPC))

	assert.Equal(t, 2.0, after-before)
	_, ok := store.Get(VPCKey("vpc-9"))
	assert.False(t, ok)
	assert.Equal(t, netif.GenerationModern, affected.Generation())
}
