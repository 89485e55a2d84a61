// Package addrspace computes subnet address capacity and suggests the next
// free subnet block. Every function is pure; results are display hints,
// not validation.
package addrspace

import (
	"net"
	"strconv"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

const (
	// ReservedIPv4Addresses is the number of addresses per subnet that
	// instances cannot use: network, broadcast, gateway and one
	// infrastructure reservation.
	ReservedIPv4Addresses = 4

	// DefaultSubnetIPv4CIDR is the first block suggested for a new subnet
	DefaultSubnetIPv4CIDR = "10.0.0.0/24"

	recommendedPrefixLen = 24
)

var privateTen = mustParseCIDR("10.0.0.0/8")

// ipv6LinodeCounts maps a subnet IPv6 prefix length to the number of
// instances it can hold; every instance receives its own /64.
var ipv6LinodeCounts = map[int]uint64{
	52: 4096,
	53: 2048,
	54: 1024,
	55: 512,
	56: 256,
	57: 128,
	58: 64,
	59: 32,
	60: 16,
	61: 8,
	62: 4,
	63: 2,
	64: 1,
}

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// AvailableIPv4Count returns the raw number of addresses in an IPv4 CIDR
// block. ok is false when the block has no valid mask.
func AvailableIPv4Count(block string) (count uint64, ok bool) {
	_, ipNet, err := net.ParseCIDR(strings.TrimSpace(block))
	if err != nil || ipNet.IP.To4() == nil {
		return 0, false
	}
	return cidr.AddressCount(ipNet), true
}

// UsableIPv4Count subtracts the reserved addresses from a raw count
func UsableIPv4Count(raw uint64) uint64 {
	if raw <= ReservedIPv4Addresses {
		return 0
	}
	return raw - ReservedIPv4Addresses
}

// UsableIPv4CountForCIDR combines AvailableIPv4Count and UsableIPv4Count
func UsableIPv4CountForCIDR(block string) (uint64, bool) {
	raw, ok := AvailableIPv4Count(block)
	if !ok {
		return 0, false
	}
	return UsableIPv4Count(raw), true
}

// AvailableIPv6LinodeCount returns how many instances fit in a subnet with
// the given IPv6 prefix length. It accepts "/56", "56" or a full block such
// as "2600:3c03:e000::/56". Unrecognized input yields 0.
func AvailableIPv6LinodeCount(prefixLength string) uint64 {
	s := strings.TrimSpace(prefixLength)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return ipv6LinodeCounts[n]
}

// RecommendNextIPv4CIDR suggests the /24 after lastSuggested inside
// 10.0.0.0/8 that does not collide with any of existing. The third octet
// is incremented first, carrying into the second octet, and the search
// wraps back to 10.0.0.0/24 past 10.255.255.0/24. A malformed
// lastSuggested starts the search at DefaultSubnetIPv4CIDR. It returns ""
// only when every /24 in the space is taken.
func RecommendNextIPv4CIDR(lastSuggested string, existing []string) string {
	taken := make([]*net.IPNet, 0, len(existing))
	for _, e := range existing {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(e)); err == nil && n.IP.To4() != nil {
			taken = append(taken, n)
		}
	}

	candidate, increment := startingBlock(lastSuggested)

	// 10.0.0.0/8 holds 65536 blocks of /24
	for tries := 0; tries < 1<<16; tries++ {
		if increment {
			candidate = nextBlock(candidate)
		}
		increment = true
		if !overlapsAny(candidate, taken) {
			return candidate.String()
		}
	}
	return ""
}

func startingBlock(lastSuggested string) (*net.IPNet, bool) {
	ip, _, err := net.ParseCIDR(strings.TrimSpace(lastSuggested))
	if err != nil || !privateTen.Contains(ip) {
		return mustParseCIDR(DefaultSubnetIPv4CIDR), false
	}
	mask := net.CIDRMask(recommendedPrefixLen, 32)
	return &net.IPNet{IP: ip.To4().Mask(mask), Mask: mask}, true
}

func nextBlock(block *net.IPNet) *net.IPNet {
	next, exceeded := cidr.NextSubnet(block, recommendedPrefixLen)
	if exceeded || !privateTen.Contains(next.IP) {
		return mustParseCIDR(DefaultSubnetIPv4CIDR)
	}
	return next
}

func overlapsAny(candidate *net.IPNet, taken []*net.IPNet) bool {
	for _, t := range taken {
		if t.Contains(candidate.IP) || candidate.Contains(t.IP) {
			return true
		}
	}
	return false
}

// Capacity is the address capacity of one subnet
type Capacity struct {
	IPv4Available uint64
	IPv4Usable    uint64
	// IPv4Known is false when the subnet's IPv4 block could not be parsed
	IPv4Known   bool
	IPv6Linodes uint64
}

// Calculator computes subnet capacity with the account's dual-stack
// capability passed in as configuration
type Calculator struct {
	DualStack bool
}

// SubnetCapacity returns the capacity of a subnet. IPv6 capacity is only
// computed when dual-stack is enabled.
func (c Calculator) SubnetCapacity(subnet netif.Subnet) Capacity {
	var capacity Capacity
	if raw, ok := AvailableIPv4Count(subnet.IPv4CIDR); ok {
		capacity.IPv4Available = raw
		capacity.IPv4Usable = UsableIPv4Count(raw)
		capacity.IPv4Known = true
	}
	if c.DualStack && subnet.HasIPv6() {
		capacity.IPv6Linodes = AvailableIPv6LinodeCount(subnet.IPv6CIDR)
	}
	return capacity
}
