package lib

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/assign"
	awsbackend "github.com/johnlam90/vpc-subnet-assigner/pkg/aws"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/config"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/unassign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *api.MockClient) {
	mock := api.NewMockClient()
	mock.AddVPC(netif.VPC{
		ID: "vpc-1",
		Subnets: []netif.Subnet{
			{ID: "7", IPv4CIDR: "10.0.0.0/24"},
			{ID: "8", IPv4CIDR: "10.0.1.0/24", IPv6CIDR: "2600:3c03:e000:123::/64"},
		},
	})
	mock.AddInstance(netif.Instance{ID: "100", InterfaceGeneration: netif.GenerationModern})
	mock.AddInstance(netif.Instance{ID: "200", InterfaceGeneration: netif.GenerationLegacy},
		netif.ConfigProfile{ID: "cfg-1"})

	cfg := config.DefaultConfig()
	cfg.APIToken = "token"
	m, err := NewManagerWithClient(mock, cfg, testr.New(t), Options{})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, mock
}

func TestNewManager_Validation(t *testing.T) {
	ctx := context.Background()
	logger := testr.New(t)

	_, err := NewManager(ctx, nil, logger, Options{})
	assert.Error(t, err)

	cfg := config.DefaultConfig()
	_, err = NewManager(ctx, cfg, logger, Options{})
	assert.Error(t, err, "the REST backend needs a token")

	cfg.APIToken = "token"
	m, err := NewManager(ctx, cfg, logger, Options{})
	require.NoError(t, err)
	m.Close()

	_, err = NewManagerWithClient(nil, cfg, logger, Options{})
	assert.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()
	logger := testr.New(t)

	cfg := config.DefaultConfig()
	cfg.APIToken = "token"
	backend, err := NewBackend(ctx, cfg, logger, nil)
	require.NoError(t, err)
	_, ok := backend.(*api.Client)
	assert.True(t, ok, "expected the REST client, got %T", backend)

	cfg.Backend = config.BackendEC2
	cfg.AWSRegion = "us-east-1"
	cfg.AWSAccessKeyID = "AKIDEXAMPLE"
	cfg.AWSSecretAccessKey = "secret"
	backend, err = NewBackend(ctx, cfg, logger, nil)
	require.NoError(t, err)
	_, ok = backend.(*awsbackend.Backend)
	assert.True(t, ok, "expected the EC2 backend, got %T", backend)

	cfg.Backend = "carrier-pigeon"
	_, err = NewBackend(ctx, cfg, logger, nil)
	assert.Error(t, err)

	cfg.Backend = config.BackendREST
	cfg.APIURL = ""
	_, err = NewBackend(ctx, cfg, logger, nil)
	assert.Error(t, err)
}

func TestManager_SubnetCapacity(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	capacity, err := m.SubnetCapacity(ctx, "vpc-1", "7")
	require.NoError(t, err)
	assert.Equal(t, uint64(256), capacity.IPv4Available)
	assert.Equal(t, uint64(252), capacity.IPv4Usable)
	assert.Zero(t, capacity.IPv6Linodes, "IPv6 capacity needs dual-stack")

	_, err = m.SubnetCapacity(ctx, "vpc-1", "missing")
	assert.True(t, api.IsNotFound(err))

	_, err = m.SubnetCapacity(ctx, "", "7")
	assert.Error(t, err)
}

func TestManager_RecommendSubnetCIDR(t *testing.T) {
	m, _ := newTestManager(t)

	recommended, err := m.RecommendSubnetCIDR(context.Background(), "vpc-1", "10.0.0.0/24")
	require.NoError(t, err)
	assert.Equal(t, "10.0.2.0/24", recommended)

	_, err = m.RecommendSubnetCIDR(context.Background(), "vpc-missing", "")
	assert.True(t, api.IsNotFound(err))
}

func TestManager_AssignInvalidatesCachedReads(t *testing.T) {
	m, mock := newTestManager(t)
	ctx := context.Background()

	subnet, err := m.client.GetSubnet(ctx, "vpc-1", "7")
	require.NoError(t, err)
	assert.Empty(t, subnet.AttachedInstanceIDs)

	_, err = m.Assign(ctx, netif.AssignmentRequest{InstanceID: "100", SubnetID: "7", VPCID: "vpc-1", AutoAssignIPv4: true})
	require.NoError(t, err)

	subnet, err = m.client.GetSubnet(ctx, "vpc-1", "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, subnet.AttachedInstanceIDs)
	assert.Equal(t, 2, mock.Calls("GetSubnet"))

	_, err = m.Assign(ctx, netif.AssignmentRequest{InstanceID: "200", SubnetID: "7", AutoAssignIPv4: true})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Calls("ListConfigs"))
	assert.Len(t, m.Recent().List(), 2)
}

func TestManager_AssignRequiresIDs(t *testing.T) {
	m, mock := newTestManager(t)

	_, err := m.Assign(context.Background(), netif.AssignmentRequest{SubnetID: "7", AutoAssignIPv4: true})
	apiErr, ok := api.AsErrors(err)
	require.True(t, ok)
	assert.Equal(t, "instanceId", apiErr.FieldErrors()[0].Field)
	assert.Zero(t, mock.Calls("GetInstance"))
}

func TestManager_OnStateChange(t *testing.T) {
	mock := api.NewMockClient()
	mock.AddInstance(netif.Instance{ID: "100", InterfaceGeneration: netif.GenerationModern})

	var states []assign.State
	cfg := config.DefaultConfig()
	m, err := NewManagerWithClient(mock, cfg, testr.New(t), Options{
		OnStateChange: func(_, to assign.State) { states = append(states, to) },
	})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Assign(context.Background(), netif.AssignmentRequest{InstanceID: "100", SubnetID: "nowhere", AutoAssignIPv4: true})
	require.Error(t, err)
	assert.Equal(t, []assign.State{assign.StateResolvingConfigs, assign.StateSubmitting, assign.StateFailed}, states)
}

func TestManager_Unassign(t *testing.T) {
	m, mock := newTestManager(t)
	ctx := context.Background()

	_, err := m.Assign(ctx, netif.AssignmentRequest{InstanceID: "100", SubnetID: "7", VPCID: "vpc-1", AutoAssignIPv4: true})
	require.NoError(t, err)
	_, err = m.Assign(ctx, netif.AssignmentRequest{InstanceID: "200", SubnetID: "7", VPCID: "vpc-1", AutoAssignIPv4: true})
	require.NoError(t, err)

	// warm the cache so the deletions must invalidate it
	_, err = m.client.ListInterfaces(ctx, "100")
	require.NoError(t, err)

	selection := unassign.NewSelection("100", "200", "missing")
	result := m.Unassign(ctx, selection, "vpc-1", "7")

	assert.ElementsMatch(t, []string{"100", "200"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "missing", result.Failed[0].InstanceID)
	assert.True(t, api.IsNotFound(result.Failed[0].Err))
	assert.Equal(t, []string{"missing"}, selection.IDs())

	ifaces, err := m.client.ListInterfaces(ctx, "100")
	require.NoError(t, err)
	assert.Empty(t, ifaces)

	subnet, err := m.client.GetSubnet(ctx, "vpc-1", "7")
	require.NoError(t, err)
	assert.Empty(t, subnet.AttachedInstanceIDs)
	assert.Equal(t, 2, mock.Calls("DeleteInterface"))
}

func TestManager_UnassignNilSelection(t *testing.T) {
	m, mock := newTestManager(t)

	result := m.Unassign(context.Background(), nil, "vpc-1", "7")
	assert.Empty(t, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Zero(t, mock.Calls("GetInstance"))
}

func TestManager_RoutingCheck(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Assign(ctx, netif.AssignmentRequest{InstanceID: "100", SubnetID: "7", AutoAssignIPv4: true})
	require.NoError(t, err)

	res, err := m.RoutingCheck(ctx, "100", "7")
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.True(t, res.UnrecommendedRouting(), "a NAT mapped interface without the default route is reported")

	_, err = m.RoutingCheck(ctx, "100", "8")
	var resErr *netif.ResolutionError
	assert.True(t, errors.As(err, &resErr))
}
