package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/util"
)

// MockClient implements InfraAPI in memory for tests and dry runs
type MockClient struct {
	// Mocked resources
	Instances  map[string]*netif.Instance          // instanceID -> instance
	Configs    map[string][]netif.ConfigProfile    // instanceID -> profiles
	Interfaces map[string][]netif.ModernInterface  // instanceID -> modern interfaces
	VPCs       map[string]*netif.VPC               // vpcID -> VPC
	// FailureScenarios maps an operation name, or "operation:instanceID",
	// to the error that call should return
	FailureScenarios map[string]error
	// CallCounts counts calls per operation name
	CallCounts map[string]int

	SubmitWaitTime time.Duration // time to wait for create calls
	DeleteWaitTime time.Duration // time to wait for delete calls
	ReadWaitTime   time.Duration // time to wait for read calls

	nextID    int
	nextHosts map[string]int // subnetID -> next host number
	mutex     sync.RWMutex
}

// NewMockClient creates a new mock client for testing
func NewMockClient() *MockClient {
	return &MockClient{
		Instances:        make(map[string]*netif.Instance),
		Configs:          make(map[string][]netif.ConfigProfile),
		Interfaces:       make(map[string][]netif.ModernInterface),
		VPCs:             make(map[string]*netif.VPC),
		FailureScenarios: make(map[string]error),
		CallCounts:       make(map[string]int),
		nextHosts:        make(map[string]int),
	}
}

// SetFailureScenario makes an operation fail with err. Use
// "operation:instanceID" to fail only for one instance; a nil err clears it.
func (m *MockClient) SetFailureScenario(operation string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err == nil {
		delete(m.FailureScenarios, operation)
		return
	}
	m.FailureScenarios[operation] = err
}

// AddVPC adds a VPC and its subnets to the mock client
func (m *MockClient) AddVPC(vpc netif.VPC) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copied := copyVPC(vpc)
	m.VPCs[vpc.ID] = &copied
}

// AddInstance adds an instance and, for legacy instances, its profiles
func (m *MockClient) AddInstance(instance netif.Instance, profiles ...netif.ConfigProfile) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copied := instance
	m.Instances[instance.ID] = &copied
	if len(profiles) > 0 {
		m.Configs[instance.ID] = copyProfiles(profiles)
	}
}

// AddModernInterface attaches an existing modern interface to an instance
func (m *MockClient) AddModernInterface(instanceID string, iface netif.ModernInterface) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	iface.InstanceID = instanceID
	m.Interfaces[instanceID] = append(m.Interfaces[instanceID], copyModern(iface))
	if iface.VPC != nil {
		m.attachLocked(iface.VPC.SubnetID, instanceID)
	}
}

// Calls returns how many times an operation was called
func (m *MockClient) Calls(operation string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.CallCounts[operation]
}

// enter records a call, applies the wait time and returns any configured
// failure. It must be called without the mutex held.
func (m *MockClient) enter(ctx context.Context, operation, instanceID string, wait time.Duration) error {
	m.mutex.Lock()
	m.CallCounts[operation]++
	err := m.FailureScenarios[operation+":"+instanceID]
	if err == nil {
		err = m.FailureScenarios[operation]
	}
	m.mutex.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// GetInstance returns an instance
func (m *MockClient) GetInstance(ctx context.Context, instanceID string) (*netif.Instance, error) {
	if err := m.enter(ctx, "GetInstance", instanceID, m.ReadWaitTime); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	instance, ok := m.Instances[instanceID]
	if !ok {
		return nil, notFound()
	}
	copied := *instance
	return &copied, nil
}

// ListConfigs returns the configuration profiles of an instance
func (m *MockClient) ListConfigs(ctx context.Context, instanceID string) ([]netif.ConfigProfile, error) {
	if err := m.enter(ctx, "ListConfigs", instanceID, m.ReadWaitTime); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if _, ok := m.Instances[instanceID]; !ok {
		return nil, notFound()
	}
	return copyProfiles(m.Configs[instanceID]), nil
}

// ListInterfaces returns the modern interfaces of an instance
func (m *MockClient) ListInterfaces(ctx context.Context, instanceID string) ([]netif.ModernInterface, error) {
	if err := m.enter(ctx, "ListInterfaces", instanceID, m.ReadWaitTime); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if _, ok := m.Instances[instanceID]; !ok {
		return nil, notFound()
	}
	out := make([]netif.ModernInterface, 0, len(m.Interfaces[instanceID]))
	for _, iface := range m.Interfaces[instanceID] {
		out = append(out, copyModern(iface))
	}
	return out, nil
}

// AppendConfigInterface adds a legacy interface to a configuration profile
func (m *MockClient) AppendConfigInterface(ctx context.Context, instanceID, configID string, payload LegacyInterfacePayload) (*netif.LegacyInterface, error) {
	if err := m.enter(ctx, "AppendConfigInterface", instanceID, m.SubmitWaitTime); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	profiles := m.Configs[instanceID]
	idx := -1
	for i := range profiles {
		if profiles[i].ID == configID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, notFound()
	}

	vpcID, subnet := m.findSubnetLocked(payload.SubnetID)
	if subnet == nil {
		return nil, &Errors{StatusCode: http.StatusBadRequest, List: []APIError{{Field: "subnet_id", Reason: "Subnet not found"}}}
	}

	address := ""
	if payload.IPv4.VPC != nil {
		address = *payload.IPv4.VPC
	}
	if address == "" || address == netif.AutoAddress {
		var err error
		if address, err = m.allocateLocked(subnet); err != nil {
			return nil, err
		}
	}

	m.nextID++
	iface := netif.LegacyInterface{
		ID:       fmt.Sprintf("%d", m.nextID),
		ConfigID: configID,
		Purpose:  netif.PurposeVPC,
		VPCID:    vpcID,
		Subnet:   payload.SubnetID,
		IPv4:     netif.LegacyIPv4{VPC: address, NAT1To1: payload.IPv4.NAT1To1},
		IPRanges: append([]string(nil), payload.IPRanges...),
	}
	profiles[idx].Interfaces = append(profiles[idx].Interfaces, iface)
	m.attachLocked(payload.SubnetID, instanceID)

	return &iface, nil
}

// CreateInterface creates a modern interface on an instance
func (m *MockClient) CreateInterface(ctx context.Context, instanceID string, payload ModernInterfacePayload) (*netif.ModernInterface, error) {
	if err := m.enter(ctx, "CreateInterface", instanceID, m.SubmitWaitTime); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.Instances[instanceID]; !ok {
		return nil, notFound()
	}
	if payload.VPC == nil {
		return nil, &Errors{StatusCode: http.StatusBadRequest, List: []APIError{{Field: "vpc", Reason: "vpc is required"}}}
	}

	vpcID, subnet := m.findSubnetLocked(payload.VPC.SubnetID)
	if subnet == nil {
		return nil, &Errors{StatusCode: http.StatusBadRequest, List: []APIError{{Field: "vpc.subnet_id", Reason: "Subnet not found"}}}
	}

	modernVPC := &netif.ModernVPC{VPCID: vpcID, SubnetID: payload.VPC.SubnetID}
	for i, addr := range payload.VPC.IPv4.Addresses {
		address := addr.Address
		if address == netif.AutoAddress {
			var err error
			if address, err = m.allocateLocked(subnet); err != nil {
				return nil, err
			}
		}
		modernVPC.IPv4.Addresses = append(modernVPC.IPv4.Addresses, netif.ModernAddress{
			Address:        address,
			Primary:        i == 0,
			NAT1To1Address: addr.NAT1To1Address,
		})
	}
	modernVPC.IPv4.Ranges = append(modernVPC.IPv4.Ranges, payload.VPC.IPv4.Ranges...)

	m.nextID++
	iface := netif.ModernInterface{
		ID:         fmt.Sprintf("%d", m.nextID),
		InstanceID: instanceID,
		VPC:        modernVPC,
	}
	if payload.DefaultRoute != nil {
		iface.DefaultRoute = *payload.DefaultRoute
	}
	m.Interfaces[instanceID] = append(m.Interfaces[instanceID], iface)
	m.attachLocked(payload.VPC.SubnetID, instanceID)

	copied := copyModern(iface)
	return &copied, nil
}

// DeleteInterface deletes a legacy interface when configID is set, otherwise
// a modern one
func (m *MockClient) DeleteInterface(ctx context.Context, instanceID, configID, interfaceID string) error {
	if err := m.enter(ctx, "DeleteInterface", instanceID, m.DeleteWaitTime); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	subnetID := ""
	if configID != "" {
		profiles := m.Configs[instanceID]
		for i := range profiles {
			if profiles[i].ID != configID {
				continue
			}
			for j, iface := range profiles[i].Interfaces {
				if iface.ID == interfaceID {
					subnetID = iface.Subnet
					profiles[i].Interfaces = append(profiles[i].Interfaces[:j], profiles[i].Interfaces[j+1:]...)
					break
				}
			}
		}
	} else {
		ifaces := m.Interfaces[instanceID]
		for i, iface := range ifaces {
			if iface.ID == interfaceID {
				subnetID = iface.SubnetID()
				m.Interfaces[instanceID] = append(ifaces[:i], ifaces[i+1:]...)
				break
			}
		}
	}

	if subnetID == "" {
		return notFound()
	}
	if !m.stillAttachedLocked(instanceID, subnetID) {
		m.detachLocked(subnetID, instanceID)
	}
	return nil
}

// GetVPC returns a VPC with its subnets
func (m *MockClient) GetVPC(ctx context.Context, vpcID string) (*netif.VPC, error) {
	if err := m.enter(ctx, "GetVPC", "", m.ReadWaitTime); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	vpc, ok := m.VPCs[vpcID]
	if !ok {
		return nil, notFound()
	}
	copied := copyVPC(*vpc)
	return &copied, nil
}

// GetSubnet returns one subnet of a VPC
func (m *MockClient) GetSubnet(ctx context.Context, vpcID, subnetID string) (*netif.Subnet, error) {
	if err := m.enter(ctx, "GetSubnet", "", m.ReadWaitTime); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	vpc, ok := m.VPCs[vpcID]
	if !ok {
		return nil, notFound()
	}
	subnet := vpc.Subnet(subnetID)
	if subnet == nil {
		return nil, notFound()
	}
	copied := copySubnet(*subnet)
	return &copied, nil
}

func (m *MockClient) findSubnetLocked(subnetID string) (string, *netif.Subnet) {
	for id, vpc := range m.VPCs {
		if subnet := vpc.Subnet(subnetID); subnet != nil {
			return id, subnet
		}
	}
	return "", nil
}

// allocateLocked hands out the next host address of the subnet, skipping
// the network and gateway addresses
func (m *MockClient) allocateLocked(subnet *netif.Subnet) (string, error) {
	_, network, err := net.ParseCIDR(subnet.IPv4CIDR)
	if err != nil {
		return "", &Errors{StatusCode: http.StatusBadRequest, List: []APIError{{Field: "subnet_id", Reason: "Subnet has no IPv4 range"}}}
	}
	host := m.nextHosts[subnet.ID]
	if host < 2 {
		host = 2
	}
	ip, err := cidr.Host(network, host)
	if err != nil {
		return "", &Errors{StatusCode: http.StatusBadRequest, List: []APIError{{Field: "ipv4.vpc", Reason: "No addresses available in subnet"}}}
	}
	m.nextHosts[subnet.ID] = host + 1
	return ip.String(), nil
}

func (m *MockClient) attachLocked(subnetID, instanceID string) {
	_, subnet := m.findSubnetLocked(subnetID)
	if subnet == nil {
		return
	}
	if util.ContainsString(subnet.AttachedInstanceIDs, instanceID) {
		return
	}
	subnet.AttachedInstanceIDs = append(subnet.AttachedInstanceIDs, instanceID)
}

func (m *MockClient) detachLocked(subnetID, instanceID string) {
	_, subnet := m.findSubnetLocked(subnetID)
	if subnet == nil {
		return
	}
	subnet.AttachedInstanceIDs = util.RemoveString(subnet.AttachedInstanceIDs, instanceID)
}

func (m *MockClient) stillAttachedLocked(instanceID, subnetID string) bool {
	for _, profile := range m.Configs[instanceID] {
		if profile.VPCInterface(subnetID) >= 0 {
			return true
		}
	}
	for _, iface := range m.Interfaces[instanceID] {
		if iface.SubnetID() == subnetID {
			return true
		}
	}
	return false
}

func notFound() *Errors {
	return NewStatusError(http.StatusNotFound, "Not found")
}

func copySubnet(s netif.Subnet) netif.Subnet {
	s.AttachedInstanceIDs = append([]string(nil), s.AttachedInstanceIDs...)
	return s
}

func copyVPC(v netif.VPC) netif.VPC {
	subnets := make([]netif.Subnet, 0, len(v.Subnets))
	for _, s := range v.Subnets {
		subnets = append(subnets, copySubnet(s))
	}
	v.Subnets = subnets
	return v
}

func copyProfiles(profiles []netif.ConfigProfile) []netif.ConfigProfile {
	if profiles == nil {
		return nil
	}
	out := make([]netif.ConfigProfile, 0, len(profiles))
	for _, p := range profiles {
		ifaces := make([]netif.LegacyInterface, 0, len(p.Interfaces))
		for _, iface := range p.Interfaces {
			iface.ConfigID = p.ID
			iface.IPRanges = append([]string(nil), iface.IPRanges...)
			ifaces = append(ifaces, iface)
		}
		p.Interfaces = ifaces
		out = append(out, p)
	}
	return out
}

func copyModern(iface netif.ModernInterface) netif.ModernInterface {
	if iface.VPC != nil {
		vpc := *iface.VPC
		vpc.IPv4.Addresses = append([]netif.ModernAddress(nil), vpc.IPv4.Addresses...)
		vpc.IPv4.Ranges = append([]netif.ModernRange(nil), vpc.IPv4.Ranges...)
		iface.VPC = &vpc
	}
	return iface
}
