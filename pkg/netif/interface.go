package netif

// NetworkInterface is either a *LegacyInterface or a *ModernInterface.
// The unexported marker keeps the set closed to this package.
type NetworkInterface interface {
	InterfaceID() string
	SubnetID() string
	Generation() Generation
	isNetworkInterface()
}

// LegacyIPv4 holds the IPv4 settings of a legacy interface
type LegacyIPv4 struct {
	VPC     string `json:"vpc,omitempty"`
	NAT1To1 string `json:"nat_1_1,omitempty"`
}

// LegacyInterface is an interface inside a configuration profile
type LegacyInterface struct {
	ID       string     `json:"id"`
	ConfigID string     `json:"-"`
	Label    string     `json:"label,omitempty"`
	Purpose  Purpose    `json:"purpose"`
	Primary  bool       `json:"primary"`
	Active   bool       `json:"active"`
	VPCID    string     `json:"vpc_id,omitempty"`
	Subnet   string     `json:"subnet_id,omitempty"`
	IPv4     LegacyIPv4 `json:"ipv4"`
	IPRanges []string   `json:"ip_ranges,omitempty"`
}

// InterfaceID implements NetworkInterface
func (l *LegacyInterface) InterfaceID() string { return l.ID }

// SubnetID implements NetworkInterface
func (l *LegacyInterface) SubnetID() string { return l.Subnet }

// Generation implements NetworkInterface
func (l *LegacyInterface) Generation() Generation { return GenerationLegacy }

func (*LegacyInterface) isNetworkInterface() {}

// ModernAddress is one IPv4 address of a modern VPC interface
type ModernAddress struct {
	Address        string `json:"address"`
	Primary        bool   `json:"primary"`
	NAT1To1Address string `json:"nat_1_1_address,omitempty"`
}

// ModernRange is one routed IPv4 range of a modern VPC interface
type ModernRange struct {
	Range string `json:"range"`
}

// ModernIPv4 holds the IPv4 settings of a modern VPC interface
type ModernIPv4 struct {
	Addresses []ModernAddress `json:"addresses"`
	Ranges    []ModernRange   `json:"ranges"`
}

// ModernVPC is the VPC section of a modern interface
type ModernVPC struct {
	VPCID    string     `json:"vpc_id"`
	SubnetID string     `json:"subnet_id"`
	IPv4     ModernIPv4 `json:"ipv4"`
}

// DefaultRoute marks which address families route through an interface
type DefaultRoute struct {
	IPv4 bool `json:"ipv4"`
	IPv6 bool `json:"ipv6"`
}

// ModernInterface is an interface attached directly to an instance.
// Membership in the instance's interface list implies it is active.
type ModernInterface struct {
	ID           string       `json:"id"`
	InstanceID   string       `json:"-"`
	MACAddress   string       `json:"mac_address,omitempty"`
	DefaultRoute DefaultRoute `json:"default_route"`
	VPC          *ModernVPC   `json:"vpc"`
}

// InterfaceID implements NetworkInterface
func (m *ModernInterface) InterfaceID() string { return m.ID }

// SubnetID implements NetworkInterface
func (m *ModernInterface) SubnetID() string {
	if m.VPC == nil {
		return ""
	}
	return m.VPC.SubnetID
}

// Generation implements NetworkInterface
func (m *ModernInterface) Generation() Generation { return GenerationModern }

func (*ModernInterface) isNetworkInterface() {}

// NormalizedPrimaryIPv4 returns the primary VPC IPv4 address of an interface
func NormalizedPrimaryIPv4(iface NetworkInterface) (string, bool) {
	switch v := iface.(type) {
	case *LegacyInterface:
		if v.IPv4.VPC == "" {
			return "", false
		}
		return v.IPv4.VPC, true
	case *ModernInterface:
		if v.VPC == nil {
			return "", false
		}
		for _, addr := range v.VPC.IPv4.Addresses {
			if addr.Primary {
				return addr.Address, true
			}
		}
	}
	return "", false
}

// NormalizedIPRanges returns the routed IPv4 ranges of an interface
func NormalizedIPRanges(iface NetworkInterface) []string {
	switch v := iface.(type) {
	case *LegacyInterface:
		return append([]string(nil), v.IPRanges...)
	case *ModernInterface:
		if v.VPC == nil {
			return nil
		}
		ranges := make([]string, 0, len(v.VPC.IPv4.Ranges))
		for _, r := range v.VPC.IPv4.Ranges {
			ranges = append(ranges, r.Range)
		}
		return ranges
	}
	return nil
}

// NormalizedNAT1To1 returns the public address mapped to the interface
func NormalizedNAT1To1(iface NetworkInterface) (string, bool) {
	switch v := iface.(type) {
	case *LegacyInterface:
		return v.IPv4.NAT1To1, v.IPv4.NAT1To1 != ""
	case *ModernInterface:
		if v.VPC == nil {
			return "", false
		}
		for _, addr := range v.VPC.IPv4.Addresses {
			if addr.NAT1To1Address != "" {
				return addr.NAT1To1Address, true
			}
		}
	}
	return "", false
}

// HasUnrecommendedRouting reports a VPC interface whose public mapping
// cannot be used for replies because another interface owns the route.
// profile is the owning configuration profile and is ignored for modern
// interfaces.
func HasUnrecommendedRouting(iface NetworkInterface, isActive bool, profile *ConfigProfile) bool {
	switch v := iface.(type) {
	case *ModernInterface:
		return modernUnrecommendedRouting(v, isActive)
	case *LegacyInterface:
		if profile == nil {
			return false
		}
		return LegacyUnrecommendedRouting(*profile, v.Subnet, isActive)
	}
	return false
}

func modernUnrecommendedRouting(iface *ModernInterface, isActive bool) bool {
	if !isActive || iface.VPC == nil || iface.DefaultRoute.IPv4 {
		return false
	}
	_, natted := NormalizedNAT1To1(iface)
	return natted
}

// LegacyUnrecommendedRouting reports whether profile holds an active VPC
// interface on subnetID that is neither explicitly nor implicitly primary.
// Such an interface can lose routing priority after a network change; it
// is only reported, never corrected.
func LegacyUnrecommendedRouting(profile ConfigProfile, subnetID string, isActive bool) bool {
	if !isActive {
		return false
	}
	primary := PrimaryInterfaceIndex(profile.Interfaces)
	for i, iface := range profile.Interfaces {
		if iface.Purpose != PurposeVPC || iface.Subnet != subnetID {
			continue
		}
		if !iface.Primary && i != primary {
			return true
		}
	}
	return false
}

// PrimaryInterfaceIndex returns the index of the explicitly primary
// interface or, when none is marked, the first interface. It returns -1 for
// an empty list.
func PrimaryInterfaceIndex(ifaces []LegacyInterface) int {
	for i, iface := range ifaces {
		if iface.Primary {
			return i
		}
	}
	if len(ifaces) == 0 {
		return -1
	}
	return 0
}
