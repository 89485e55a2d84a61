package assign

import (
	"encoding/json"
	"testing"

	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildModernPayload_AutoIgnoresChosenAddress(t *testing.T) {
	req := netif.AssignmentRequest{
		InstanceID:     "100",
		SubnetID:       "7",
		AutoAssignIPv4: true,
		ChosenIPv4:     "192.168.1.1",
	}

	payload := BuildModernPayload(req, false)
	require.NotNil(t, payload.VPC)
	require.Len(t, payload.VPC.IPv4.Addresses, 1)
	assert.Equal(t, "auto", payload.VPC.IPv4.Addresses[0].Address)
	assert.Equal(t, "auto", payload.VPC.IPv4.Addresses[0].NAT1To1Address)
}

func TestBuildModernPayload_Wire(t *testing.T) {
	req := netif.AssignmentRequest{
		SubnetID:   "7",
		ChosenIPv4: "10.0.4.20",
		IPRanges:   []string{"10.0.4.64/28"},
		FirewallID: "55",
	}

	data, err := json.Marshal(BuildModernPayload(req, false))
	require.NoError(t, err)

	expected := `{
		"firewall_id": 55,
		"default_route": null,
		"public": null,
		"vlan": null,
		"vpc": {
			"subnet_id": 7,
			"ipv4": {
				"addresses": [{"address": "10.0.4.20", "nat_1_1_address": "auto"}],
				"ranges": [{"range": "10.0.4.64/28"}]
			}
		}
	}`
	assert.JSONEq(t, expected, string(data))
}

func TestBuildModernPayload_NoFirewallIsNull(t *testing.T) {
	data, err := json.Marshal(BuildModernPayload(netif.AssignmentRequest{SubnetID: "7", AutoAssignIPv4: true}, false))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	value, present := decoded["firewall_id"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestBuildLegacyPayload(t *testing.T) {
	tests := []struct {
		name     string
		req      netif.AssignmentRequest
		expected string
	}{
		{
			name: "auto address leaves ipv4.vpc unset",
			req:  netif.AssignmentRequest{SubnetID: "7", AutoAssignIPv4: true, ChosenIPv4: "10.0.4.9"},
			expected: `{
				"purpose": "vpc",
				"subnet_id": 7,
				"ipv4": {"nat_1_1": "any"},
				"ip_ranges": []
			}`,
		},
		{
			name: "chosen address",
			req:  netif.AssignmentRequest{SubnetID: "7", ChosenIPv4: "10.0.4.9", IPRanges: []string{"10.0.4.64/28"}},
			expected: `{
				"purpose": "vpc",
				"subnet_id": 7,
				"ipv4": {"vpc": "10.0.4.9", "nat_1_1": "any"},
				"ip_ranges": ["10.0.4.64/28"]
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(BuildLegacyPayload(tt.req, false))
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestPayloads_IPv6OnlyWithDualStack(t *testing.T) {
	req := netif.AssignmentRequest{SubnetID: "7", AutoAssignIPv4: true, AssignIPv6: true}

	assert.Nil(t, BuildLegacyPayload(req, false).IPv6)
	assert.Nil(t, BuildModernPayload(req, false).VPC.IPv6)

	legacy := BuildLegacyPayload(req, true)
	require.NotNil(t, legacy.IPv6)
	assert.Equal(t, "auto", legacy.IPv6.SLAAC[0].Range)
	assert.False(t, legacy.IPv6.IsPublic)

	data, err := json.Marshal(BuildModernPayload(req, true).VPC.IPv6)
	require.NoError(t, err)
	assert.JSONEq(t, `{"slaac": [{"range": "auto"}], "is_public": false}`, string(data))

	req.AssignIPv6 = false
	assert.Nil(t, BuildModernPayload(req, true).VPC.IPv6)
}
