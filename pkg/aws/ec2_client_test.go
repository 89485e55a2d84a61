package aws

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-logr/logr/testr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"
)

// setupMockBackend creates a backend over a mock EC2 client with one VPC,
// one subnet and one instance
func setupMockBackend(t *testing.T) (*Backend, *MockEC2Client, context.Context) {
	mockClient := NewMockEC2Client()
	mockClient.AddVPC("vpc-1", "prod")
	mockClient.AddSubnet("vpc-1", "subnet-a", "10.0.1.0/24", "app")
	mockClient.AddSubnet("vpc-1", "subnet-b", "10.0.2.0/24", "db")
	mockClient.AddSecurityGroup("sg-web", "web")
	mockClient.AddInstance("i-1", "web-1", "subnet-a")

	cfg := BackendConfig{
		Region:        "us-east-1",
		Backoff:       wait.Backoff{Duration: time.Millisecond, Factor: 1.0, Steps: 3},
		DetachTimeout: 100 * time.Millisecond,
	}
	backend := NewBackendFromClient(mockClient, cfg, testr.New(t), nil)
	return backend, mockClient, context.Background()
}

func vpcPayload(subnetID, address, nat string) api.ModernInterfacePayload {
	return api.ModernInterfacePayload{
		VPC: &api.ModernVPCPayload{
			SubnetID: subnetID,
			IPv4: api.ModernIPv4Payload{
				Addresses: []api.ModernAddressPayload{{Address: address, NAT1To1Address: nat}},
			},
		},
	}
}

func TestBackend_GetInstance(t *testing.T) {
	backend, _, ctx := setupMockBackend(t)

	instance, err := backend.GetInstance(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, "web-1", instance.Label)
	assert.Equal(t, "us-east-1", instance.Region)
	assert.True(t, instance.IsModern())

	_, err = backend.GetInstance(ctx, "i-missing")
	if !api.IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestBackend_ListInterfaces_PrimaryCarriesDefaultRoute(t *testing.T) {
	backend, _, ctx := setupMockBackend(t)

	ifaces, err := backend.ListInterfaces(ctx, "i-1")
	require.NoError(t, err)
	require.Len(t, ifaces, 1)
	assert.True(t, ifaces[0].DefaultRoute.IPv4)
	assert.Equal(t, "subnet-a", ifaces[0].SubnetID())
	assert.Equal(t, "vpc-1", ifaces[0].VPC.VPCID)

	addr, ok := netif.NormalizedPrimaryIPv4(&ifaces[0])
	assert.True(t, ok)
	assert.Equal(t, "10.0.1.4", addr)
}

func TestBackend_LegacyCallsUnsupported(t *testing.T) {
	backend, _, ctx := setupMockBackend(t)

	_, err := backend.ListConfigs(ctx, "i-1")
	assertStatus(t, err, http.StatusBadRequest)

	_, err = backend.AppendConfigInterface(ctx, "i-1", "cfg-1", api.LegacyInterfacePayload{})
	assertStatus(t, err, http.StatusBadRequest)

	err = backend.DeleteInterface(ctx, "i-1", "cfg-1", "eni-1")
	assertStatus(t, err, http.StatusBadRequest)
}

func TestBackend_InterfaceLifecycle(t *testing.T) {
	backend, mockClient, ctx := setupMockBackend(t)

	firewall := "web"
	payload := vpcPayload("subnet-b", "10.0.2.50", "")
	payload.FirewallID = &firewall

	iface, err := backend.CreateInterface(ctx, "i-1", payload)
	if err != nil {
		t.Fatalf("Failed to create interface: %v", err)
	}
	if iface.InstanceID != "i-1" {
		t.Errorf("Expected instance ID i-1, got %s", iface.InstanceID)
	}
	if iface.DefaultRoute.IPv4 {
		t.Error("Expected secondary interface not to carry the default route")
	}
	addr, _ := netif.NormalizedPrimaryIPv4(iface)
	if addr != "10.0.2.50" {
		t.Errorf("Expected address 10.0.2.50, got %s", addr)
	}

	eni := mockClient.ENIs[iface.ID]
	require.NotNil(t, eni)
	require.NotNil(t, eni.Attachment)
	assert.Equal(t, int32(1), aws.ToInt32(eni.Attachment.DeviceIndex))
	require.Len(t, eni.Groups, 1)
	assert.Equal(t, "sg-web", aws.ToString(eni.Groups[0].GroupId))

	subnet, err := backend.GetSubnet(ctx, "vpc-1", "subnet-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"i-1"}, subnet.AttachedInstanceIDs)

	if err := backend.DeleteInterface(ctx, "i-1", "", iface.ID); err != nil {
		t.Fatalf("Failed to delete interface: %v", err)
	}
	if _, ok := mockClient.ENIs[iface.ID]; ok {
		t.Error("Expected ENI to be deleted")
	}

	subnet, err = backend.GetSubnet(ctx, "vpc-1", "subnet-b")
	require.NoError(t, err)
	assert.Empty(t, subnet.AttachedInstanceIDs)
}

func TestBackend_CreateInterface_AutoAddressWithNAT(t *testing.T) {
	backend, mockClient, ctx := setupMockBackend(t)

	iface, err := backend.CreateInterface(ctx, "i-1", vpcPayload("subnet-b", netif.AutoAddress, netif.AutoAddress))
	require.NoError(t, err)

	nat, ok := netif.NormalizedNAT1To1(iface)
	assert.True(t, ok)
	assert.NotEmpty(t, nat)
	assert.Len(t, mockClient.Addresses, 1)

	// Deleting releases the Elastic IP
	require.NoError(t, backend.DeleteInterface(ctx, "i-1", "", iface.ID))
	assert.Empty(t, mockClient.Addresses)
}

func TestBackend_CreateInterface_Tags(t *testing.T) {
	mockClient := NewMockEC2Client()
	mockClient.AddVPC("vpc-1", "prod")
	mockClient.AddSubnet("vpc-1", "subnet-a", "10.0.1.0/24", "app")
	mockClient.AddInstance("i-1", "web-1", "subnet-a")
	backend := NewBackendFromClient(mockClient, BackendConfig{
		Region: "us-east-1",
		Tags:   map[string]string{"team": "net", "managed-by": "ops"},
	}, testr.New(t), nil)

	iface, err := backend.CreateInterface(context.Background(), "i-1", vpcPayload("subnet-a", netif.AutoAddress, ""))
	require.NoError(t, err)

	tags := map[string]string{}
	for _, tag := range mockClient.ENIs[iface.ID].TagSet {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{"team": "net", "managed-by": "ops"}, tags)
}

func TestBackend_CreateInterface_AttachFailureCleansUp(t *testing.T) {
	backend, mockClient, ctx := setupMockBackend(t)
	mockClient.SetFailureScenario("AttachNetworkInterface", NewAPIError("AttachmentLimitExceeded", "Interface count exceeds the limit"))

	_, err := backend.CreateInterface(ctx, "i-1", vpcPayload("subnet-b", netif.AutoAddress, ""))
	assertStatus(t, err, http.StatusBadRequest)

	assert.Len(t, mockClient.ENIs, 1, "only the primary ENI should remain")
	assert.Equal(t, 1, mockClient.CallCount("DeleteNetworkInterface"))
}

func TestBackend_CreateInterface_NotRetried(t *testing.T) {
	backend, mockClient, ctx := setupMockBackend(t)
	mockClient.SetFailureScenario("CreateNetworkInterface", &smithyServerError)

	_, err := backend.CreateInterface(ctx, "i-1", vpcPayload("subnet-b", netif.AutoAddress, ""))
	assertStatus(t, err, http.StatusServiceUnavailable)
	assert.Equal(t, 1, mockClient.CallCount("CreateNetworkInterface"))
}

func TestBackend_CreateInterface_AddressInUse(t *testing.T) {
	backend, _, ctx := setupMockBackend(t)

	_, err := backend.CreateInterface(ctx, "i-1", vpcPayload("subnet-a", "10.0.1.4", ""))
	require.Error(t, err)

	apiErr, ok := api.AsErrors(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.Len(t, apiErr.FieldErrors(), 1)
	assert.Equal(t, "vpc.ipv4.addresses", apiErr.FieldErrors()[0].Field)
}

func TestBackend_CreateInterface_RejectsUnsupportedPayloads(t *testing.T) {
	backend, mockClient, ctx := setupMockBackend(t)

	tests := []struct {
		name    string
		payload api.ModernInterfacePayload
		field   string
	}{
		{
			name:    "public interface",
			payload: api.ModernInterfacePayload{Public: &struct{}{}},
		},
		{
			name:    "missing subnet",
			payload: api.ModernInterfacePayload{VPC: &api.ModernVPCPayload{}},
			field:   "vpc.subnet_id",
		},
		{
			name: "two addresses",
			payload: api.ModernInterfacePayload{VPC: &api.ModernVPCPayload{
				SubnetID: "subnet-b",
				IPv4: api.ModernIPv4Payload{Addresses: []api.ModernAddressPayload{
					{Address: "10.0.2.10"}, {Address: "10.0.2.11"},
				}},
			}},
			field: "vpc.ipv4.addresses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := backend.CreateInterface(ctx, "i-1", tt.payload)
			apiErr, ok := api.AsErrors(err)
			if !ok {
				t.Fatalf("Expected *api.Errors, got %v", err)
			}
			if tt.field != "" {
				require.Len(t, apiErr.FieldErrors(), 1)
				assert.Equal(t, tt.field, apiErr.FieldErrors()[0].Field)
			}
		})
	}

	assert.Zero(t, mockClient.CallCount("CreateNetworkInterface"))
}

func TestBackend_DeleteInterface_Guards(t *testing.T) {
	backend, mockClient, ctx := setupMockBackend(t)
	primary := mockClient.AddInstance("i-2", "web-2", "subnet-a")

	// The primary ENI of i-2 does not belong to i-1
	err := backend.DeleteInterface(ctx, "i-1", "", primary)
	assertStatus(t, err, http.StatusNotFound)

	err = backend.DeleteInterface(ctx, "i-2", "", primary)
	assertStatus(t, err, http.StatusBadRequest)

	err = backend.DeleteInterface(ctx, "i-1", "", "eni-missing")
	if !api.IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
	// Missing resources are not retried
	assert.Equal(t, 3, mockClient.CallCount("DescribeNetworkInterfaces"))
}

func TestBackend_GetVPC(t *testing.T) {
	backend, mockClient, ctx := setupMockBackend(t)
	mockClient.AddInstance("i-2", "web-2", "subnet-a")

	vpc, err := backend.GetVPC(ctx, "vpc-1")
	require.NoError(t, err)
	assert.Equal(t, "prod", vpc.Label)
	assert.Len(t, vpc.Subnets, 2)
	assert.False(t, vpc.DualStackEnabled)

	subnetA := vpc.Subnet("subnet-a")
	require.NotNil(t, subnetA)
	assert.ElementsMatch(t, []string{"i-1", "i-2"}, subnetA.AttachedInstanceIDs)
	assert.Equal(t, "10.0.1.0/24", subnetA.IPv4CIDR)

	_, err = backend.GetSubnet(ctx, "vpc-other", "subnet-a")
	assertStatus(t, err, http.StatusNotFound)

	_, err = backend.GetVPC(ctx, "vpc-missing")
	assertStatus(t, err, http.StatusNotFound)
}

func TestBackend_ThrottlingIsRetried(t *testing.T) {
	backend, mockClient, ctx := setupMockBackend(t)
	mockClient.SetFailureScenario("DescribeInstances", NewAPIError("RequestLimitExceeded", "Request limit exceeded."))

	_, err := backend.GetInstance(ctx, "i-1")
	assertStatus(t, err, http.StatusTooManyRequests)
	assert.Equal(t, 3, mockClient.CallCount("DescribeInstances"))
}

func TestSecurityGroupResolver_CachesNames(t *testing.T) {
	mockClient := NewMockEC2Client()
	mockClient.AddSecurityGroup("sg-123", "web")
	c := newCaller(BackendConfig{}.withDefaults(), observability.NewStructuredLogger(testr.New(t), nil))
	resolver := NewEC2SecurityGroupResolver(mockClient, c, time.Minute, testr.New(t))
	ctx := context.Background()

	id, err := resolver.ResolveSecurityGroupID(ctx, "sg-999")
	require.NoError(t, err)
	assert.Equal(t, "sg-999", id, "IDs pass through unchanged")
	assert.Zero(t, mockClient.CallCount("DescribeSecurityGroups"))

	for i := 0; i < 2; i++ {
		id, err = resolver.ResolveSecurityGroupID(ctx, "web")
		require.NoError(t, err)
		assert.Equal(t, "sg-123", id)
	}
	assert.Equal(t, 1, mockClient.CallCount("DescribeSecurityGroups"))

	_, err = resolver.ResolveSecurityGroupID(ctx, "missing")
	apiErr, ok := api.AsErrors(err)
	require.True(t, ok)
	assert.Equal(t, "firewall_id", apiErr.FieldErrors()[0].Field)
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	apiErr, ok := api.AsErrors(err)
	if !ok {
		t.Fatalf("Expected *api.Errors with status %d, got %v", status, err)
	}
	if apiErr.StatusCode != status {
		t.Errorf("Expected status %d, got %d (%v)", status, apiErr.StatusCode, apiErr)
	}
}
