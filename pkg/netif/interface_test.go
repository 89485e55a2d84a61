package netif

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func modernVPCInterface(subnetID string, defaultRoute bool, addrs ...ModernAddress) *ModernInterface {
	return &ModernInterface{
		ID:           "iface-1",
		DefaultRoute: DefaultRoute{IPv4: defaultRoute},
		VPC: &ModernVPC{
			VPCID:    "vpc-1",
			SubnetID: subnetID,
			IPv4:     ModernIPv4{Addresses: addrs},
		},
	}
}

func TestNormalizedPrimaryIPv4(t *testing.T) {
	tests := []struct {
		name   string
		iface  NetworkInterface
		want   string
		wantOK bool
	}{
		{
			name:   "legacy with vpc address",
			iface:  &LegacyInterface{Purpose: PurposeVPC, IPv4: LegacyIPv4{VPC: "10.0.0.5"}},
			want:   "10.0.0.5",
			wantOK: true,
		},
		{
			name:   "legacy without vpc address",
			iface:  &LegacyInterface{Purpose: PurposeVPC},
			wantOK: false,
		},
		{
			name: "modern picks the primary address",
			iface: modernVPCInterface("subnet-1", true,
				ModernAddress{Address: "10.0.0.9"},
				ModernAddress{Address: "10.0.0.7", Primary: true},
			),
			want:   "10.0.0.7",
			wantOK: true,
		},
		{
			name:   "modern without vpc section",
			iface:  &ModernInterface{ID: "iface-2"},
			wantOK: false,
		},
		{
			name:   "modern without primary address",
			iface:  modernVPCInterface("subnet-1", true, ModernAddress{Address: "10.0.0.9"}),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizedPrimaryIPv4(tt.iface)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizedIPRanges(t *testing.T) {
	legacy := &LegacyInterface{IPRanges: []string{"10.0.4.0/24", "10.0.5.0/24"}}
	assert.Equal(t, []string{"10.0.4.0/24", "10.0.5.0/24"}, NormalizedIPRanges(legacy))

	modern := modernVPCInterface("subnet-1", true)
	modern.VPC.IPv4.Ranges = []ModernRange{{Range: "10.0.6.0/28"}}
	assert.Equal(t, []string{"10.0.6.0/28"}, NormalizedIPRanges(modern))

	assert.Nil(t, NormalizedIPRanges(&ModernInterface{}))
}

func TestHasUnrecommendedRoutingModern(t *testing.T) {
	natted := ModernAddress{Address: "10.0.0.2", Primary: true, NAT1To1Address: "203.0.113.4"}
	plain := ModernAddress{Address: "10.0.0.2", Primary: true}

	tests := []struct {
		name     string
		iface    *ModernInterface
		isActive bool
		want     bool
	}{
		{"active natted without default route", modernVPCInterface("s", false, natted), true, true},
		{"active natted with default route", modernVPCInterface("s", true, natted), true, false},
		{"inactive natted without default route", modernVPCInterface("s", false, natted), false, false},
		{"active without nat", modernVPCInterface("s", false, plain), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasUnrecommendedRouting(tt.iface, tt.isActive, nil))
		})
	}
}

func TestHasUnrecommendedRoutingLegacy(t *testing.T) {
	vpcIface := func(primary bool) LegacyInterface {
		return LegacyInterface{ID: "2", Purpose: PurposeVPC, Subnet: "subnet-1", Primary: primary, Active: true}
	}
	public := func(primary bool) LegacyInterface {
		return LegacyInterface{ID: "1", Purpose: PurposePublic, Primary: primary, Active: true}
	}

	tests := []struct {
		name     string
		profile  ConfigProfile
		isActive bool
		want     bool
	}{
		{
			name:     "vpc second with nothing marked primary",
			profile:  ConfigProfile{ID: "c1", Interfaces: []LegacyInterface{public(false), vpcIface(false)}},
			isActive: true,
			want:     true,
		},
		{
			name:     "vpc first is implicitly primary",
			profile:  ConfigProfile{ID: "c1", Interfaces: []LegacyInterface{vpcIface(false), public(false)}},
			isActive: true,
			want:     false,
		},
		{
			name:     "vpc explicitly primary",
			profile:  ConfigProfile{ID: "c1", Interfaces: []LegacyInterface{public(false), vpcIface(true)}},
			isActive: true,
			want:     false,
		},
		{
			name:     "vpc first but public explicitly primary",
			profile:  ConfigProfile{ID: "c1", Interfaces: []LegacyInterface{vpcIface(false), public(true)}},
			isActive: true,
			want:     true,
		},
		{
			name:     "profile not active",
			profile:  ConfigProfile{ID: "c1", Interfaces: []LegacyInterface{public(false), vpcIface(false)}},
			isActive: false,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := tt.profile.VPCInterface("subnet-1")
			iface := tt.profile.Interfaces[idx]
			assert.Equal(t, tt.want, HasUnrecommendedRouting(&iface, tt.isActive, &tt.profile))
		})
	}

	iface := vpcIface(false)
	assert.False(t, HasUnrecommendedRouting(&iface, true, nil), "legacy without profile cannot be judged")
}

func TestPrimaryInterfaceIndex(t *testing.T) {
	assert.Equal(t, -1, PrimaryInterfaceIndex(nil))
	assert.Equal(t, 0, PrimaryInterfaceIndex([]LegacyInterface{{ID: "a"}, {ID: "b"}}))
	assert.Equal(t, 1, PrimaryInterfaceIndex([]LegacyInterface{{ID: "a"}, {ID: "b", Primary: true}}))
}

func TestUnassignmentJobGeneration(t *testing.T) {
	assert.Equal(t, GenerationLegacy, UnassignmentJob{ConfigID: "7"}.Generation())
	assert.Equal(t, GenerationModern, UnassignmentJob{InterfaceID: "9"}.Generation())
}
