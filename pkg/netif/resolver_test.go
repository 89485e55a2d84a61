package netif

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	configs    map[string][]ConfigProfile
	interfaces map[string][]ModernInterface
	err        error
}

func (f *fakeLister) ListConfigs(_ context.Context, instanceID string) ([]ConfigProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.configs[instanceID], nil
}

func (f *fakeLister) ListInterfaces(_ context.Context, instanceID string) ([]ModernInterface, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.interfaces[instanceID], nil
}

func TestResolveActiveInterfaceModern(t *testing.T) {
	lister := &fakeLister{interfaces: map[string][]ModernInterface{
		"100": {
			{ID: "1", DefaultRoute: DefaultRoute{IPv4: true}},
			*modernVPCInterface("subnet-2", false),
		},
	}}
	lister.interfaces["100"][1].ID = "2"
	resolver := NewResolver(lister, nil, testr.New(t))
	instance := Instance{ID: "100", InterfaceGeneration: GenerationModern}

	res, err := resolver.ResolveActiveInterface(context.Background(), instance, "subnet-2")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "2", res.Interface.InterfaceID())
	assert.True(t, res.Active)
	assert.Nil(t, res.Profile)
	assert.Equal(t, UnassignmentJob{InstanceID: "100", InterfaceID: "2", SubnetID: "subnet-2"}, res.Job())

	res, err = resolver.ResolveActiveInterface(context.Background(), instance, "subnet-9")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func legacyProfiles() []ConfigProfile {
	return []ConfigProfile{
		{ID: "c1", Interfaces: []LegacyInterface{
			{ID: "11", Purpose: PurposePublic},
			{ID: "12", Purpose: PurposeVPC, Subnet: "subnet-1", Active: false},
		}},
		{ID: "c2", Interfaces: []LegacyInterface{
			{ID: "21", Purpose: PurposePublic},
			{ID: "22", Purpose: PurposeVPC, Subnet: "subnet-1", Active: true},
		}},
	}
}

func TestResolveActiveInterfaceLegacy(t *testing.T) {
	instance := Instance{ID: "200", InterfaceGeneration: GenerationLegacy}
	lister := &fakeLister{configs: map[string][]ConfigProfile{"200": legacyProfiles()}}

	t.Run("booted profile wins", func(t *testing.T) {
		resolver := NewResolver(lister, StaticBootedConfigs{"200": "c2"}, testr.New(t))
		res, err := resolver.ResolveActiveInterface(context.Background(), instance, "subnet-1")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "22", res.Interface.InterfaceID())
		assert.Equal(t, "c2", res.ConfigID())
		assert.True(t, res.Active)
		assert.True(t, res.BootState.Known)
		assert.True(t, res.UnrecommendedRouting())
	})

	t.Run("matched profile not booted", func(t *testing.T) {
		resolver := NewResolver(lister, StaticBootedConfigs{"200": "c9"}, testr.New(t))
		res, err := resolver.ResolveActiveInterface(context.Background(), instance, "subnet-1")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "c1", res.ConfigID())
		assert.False(t, res.Active)
		assert.False(t, res.UnrecommendedRouting())
	})

	t.Run("unknown boot state uses reported flag", func(t *testing.T) {
		resolver := NewResolver(lister, nil, testr.New(t))
		res, err := resolver.ResolveActiveInterface(context.Background(), instance, "subnet-1")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "c2", res.ConfigID())
		assert.False(t, res.BootState.Known)
		assert.True(t, res.Active)
		assert.Equal(t, "c2", res.Job().ConfigID)
	})

	t.Run("no match", func(t *testing.T) {
		resolver := NewResolver(lister, nil, testr.New(t))
		res, err := resolver.ResolveActiveInterface(context.Background(), instance, "subnet-7")
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestResolveActiveInterfaceListError(t *testing.T) {
	boom := errors.New("service unavailable")
	resolver := NewResolver(&fakeLister{err: boom}, nil, testr.New(t))

	_, err := resolver.ResolveActiveInterface(context.Background(), Instance{ID: "1", InterfaceGeneration: GenerationModern}, "s")
	assert.ErrorIs(t, err, boom)

	_, err = resolver.ResolveActiveInterface(context.Background(), Instance{ID: "1", InterfaceGeneration: GenerationLegacy}, "s")
	assert.ErrorIs(t, err, boom)
}

func TestBuildUnassignmentJobs(t *testing.T) {
	lister := &fakeLister{
		configs: map[string][]ConfigProfile{"200": legacyProfiles()},
		interfaces: map[string][]ModernInterface{
			"100": {*modernVPCInterface("subnet-1", true)},
			"101": {},
		},
	}
	resolver := NewResolver(lister, StaticBootedConfigs{"200": "c2"}, testr.New(t))

	jobs, failures := resolver.BuildUnassignmentJobs(context.Background(), []Instance{
		{ID: "100", InterfaceGeneration: GenerationModern},
		{ID: "101", InterfaceGeneration: GenerationModern},
		{ID: "200", InterfaceGeneration: GenerationLegacy},
	}, "subnet-1")

	require.Len(t, jobs, 2)
	assert.Equal(t, UnassignmentJob{InstanceID: "100", InterfaceID: "iface-1", SubnetID: "subnet-1"}, jobs[0])
	assert.Equal(t, UnassignmentJob{InstanceID: "200", ConfigID: "c2", InterfaceID: "22", SubnetID: "subnet-1"}, jobs[1])

	require.Len(t, failures, 1)
	assert.Equal(t, "101", failures[0].InstanceID)
	var resErr *ResolutionError
	assert.ErrorAs(t, failures[0], &resErr)
}
