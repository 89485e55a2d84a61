package aws

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/util"
)

// MockEC2Client implements EC2API in memory for testing purposes
type MockEC2Client struct {
	// Mocked resources
	Instances      map[string]types.Instance          // instanceID -> instance
	ENIs           map[string]*types.NetworkInterface // eniID -> ENI
	VPCs           map[string]types.Vpc               // vpcID -> VPC
	Subnets        map[string]types.Subnet            // subnetID -> subnet
	SecurityGroups map[string]types.SecurityGroup     // sgID -> group
	Addresses      map[string]*types.Address          // allocationID -> Elastic IP
	// FailureScenarios maps an EC2 operation name to the error it returns
	FailureScenarios map[string]error
	// Calls records every operation name in call order
	Calls []string

	nextID    int
	nextHosts map[string]int // subnetID -> next host number
	mutex     sync.Mutex
}

var _ EC2API = (*MockEC2Client)(nil)

// NewMockEC2Client creates a new mock EC2 client for testing
func NewMockEC2Client() *MockEC2Client {
	return &MockEC2Client{
		Instances:        make(map[string]types.Instance),
		ENIs:             make(map[string]*types.NetworkInterface),
		VPCs:             make(map[string]types.Vpc),
		Subnets:          make(map[string]types.Subnet),
		SecurityGroups:   make(map[string]types.SecurityGroup),
		Addresses:        make(map[string]*types.Address),
		FailureScenarios: make(map[string]error),
		nextHosts:        make(map[string]int),
	}
}

// NewAPIError builds an EC2-style client fault
func NewAPIError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message, Fault: smithy.FaultClient}
}

// SetFailureScenario makes an operation fail with err; nil clears it
func (m *MockEC2Client) SetFailureScenario(operation string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err == nil {
		delete(m.FailureScenarios, operation)
		return
	}
	m.FailureScenarios[operation] = err
}

// AddVPC adds a VPC to the mock client
func (m *MockEC2Client) AddVPC(vpcID, name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.VPCs[vpcID] = types.Vpc{VpcId: aws.String(vpcID), Tags: nameTags(name)}
}

// AddSubnet adds a subnet to the mock client
func (m *MockEC2Client) AddSubnet(vpcID, subnetID, cidrBlock, name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Subnets[subnetID] = types.Subnet{
		SubnetId:  aws.String(subnetID),
		VpcId:     aws.String(vpcID),
		CidrBlock: aws.String(cidrBlock),
		Tags:      nameTags(name),
	}
}

// AddSecurityGroup adds a security group to the mock client
func (m *MockEC2Client) AddSecurityGroup(sgID, groupName string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.SecurityGroups[sgID] = types.SecurityGroup{GroupId: aws.String(sgID), GroupName: aws.String(groupName)}
}

// AddInstance adds an instance with its primary ENI in subnetID
func (m *MockEC2Client) AddInstance(instanceID, name, subnetID string) string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Instances[instanceID] = types.Instance{InstanceId: aws.String(instanceID), Tags: nameTags(name)}

	eni := m.newENILocked(subnetID, "")
	eni.Status = types.NetworkInterfaceStatusInUse
	eni.Attachment = &types.NetworkInterfaceAttachment{
		AttachmentId: aws.String(m.idLocked("eni-attach")),
		InstanceId:   aws.String(instanceID),
		DeviceIndex:  aws.Int32(0),
		Status:       types.AttachmentStatusAttached,
	}
	return aws.ToString(eni.NetworkInterfaceId)
}

func (m *MockEC2Client) enter(operation string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Calls = append(m.Calls, operation)
	return m.FailureScenarios[operation]
}

// CallCount returns how many times an operation was called
func (m *MockEC2Client) CallCount(operation string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	count := 0
	for _, call := range m.Calls {
		if call == operation {
			count++
		}
	}
	return count
}

// DescribeInstances describes instances by ID
func (m *MockEC2Client) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if err := m.enter("DescribeInstances"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var instances []types.Instance
	for _, id := range params.InstanceIds {
		instance, ok := m.Instances[id]
		if !ok {
			return nil, NewAPIError("InvalidInstanceID.NotFound", fmt.Sprintf("The instance ID '%s' does not exist", id))
		}
		instances = append(instances, instance)
	}
	if len(instances) == 0 {
		return &ec2.DescribeInstancesOutput{}, nil
	}
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{Instances: instances}}}, nil
}

// DescribeNetworkInterfaces supports ID lookups and the attachment.instance-id,
// subnet-id and vpc-id filters
func (m *MockEC2Client) DescribeNetworkInterfaces(ctx context.Context, params *ec2.DescribeNetworkInterfacesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
	if err := m.enter("DescribeNetworkInterfaces"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []types.NetworkInterface
	if len(params.NetworkInterfaceIds) > 0 {
		for _, id := range params.NetworkInterfaceIds {
			eni, ok := m.ENIs[id]
			if !ok {
				return nil, NewAPIError("InvalidNetworkInterfaceID.NotFound", fmt.Sprintf("The networkInterface ID '%s' does not exist", id))
			}
			out = append(out, *eni)
		}
		return &ec2.DescribeNetworkInterfacesOutput{NetworkInterfaces: out}, nil
	}

	for _, eni := range m.ENIs {
		if matchesENIFilters(eni, params.Filters) {
			out = append(out, *eni)
		}
	}
	return &ec2.DescribeNetworkInterfacesOutput{NetworkInterfaces: out}, nil
}

func matchesENIFilters(eni *types.NetworkInterface, filters []types.Filter) bool {
	for _, f := range filters {
		var value string
		switch aws.ToString(f.Name) {
		case "attachment.instance-id":
			if eni.Attachment != nil {
				value = aws.ToString(eni.Attachment.InstanceId)
			}
		case "subnet-id":
			value = aws.ToString(eni.SubnetId)
		case "vpc-id":
			value = aws.ToString(eni.VpcId)
		default:
			return false
		}
		if !util.ContainsString(f.Values, value) {
			return false
		}
	}
	return true
}

// CreateNetworkInterface creates an available ENI in a subnet
func (m *MockEC2Client) CreateNetworkInterface(ctx context.Context, params *ec2.CreateNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.CreateNetworkInterfaceOutput, error) {
	if err := m.enter("CreateNetworkInterface"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	subnetID := aws.ToString(params.SubnetId)
	if _, ok := m.Subnets[subnetID]; !ok {
		return nil, NewAPIError("InvalidSubnetID.NotFound", fmt.Sprintf("The subnet ID '%s' does not exist", subnetID))
	}
	for _, group := range params.Groups {
		if _, ok := m.SecurityGroups[group]; !ok {
			return nil, NewAPIError("InvalidGroup.NotFound", fmt.Sprintf("The security group '%s' does not exist", group))
		}
	}

	privateIP := aws.ToString(params.PrivateIpAddress)
	if privateIP != "" && m.addressInUseLocked(privateIP) {
		return nil, NewAPIError("InvalidIPAddress.InUse", fmt.Sprintf("The specified address %s is already in use", privateIP))
	}

	eni := m.newENILocked(subnetID, privateIP)
	if eni.PrivateIpAddress == nil {
		return nil, NewAPIError("InsufficientFreeAddressesInSubnet", "There are not enough free addresses in the subnet")
	}
	for _, prefix := range params.Ipv4Prefixes {
		eni.Ipv4Prefixes = append(eni.Ipv4Prefixes, types.Ipv4PrefixSpecification{Ipv4Prefix: prefix.Ipv4Prefix})
	}
	for _, group := range params.Groups {
		eni.Groups = append(eni.Groups, types.GroupIdentifier{GroupId: aws.String(group)})
	}
	for _, spec := range params.TagSpecifications {
		eni.TagSet = append(eni.TagSet, spec.Tags...)
	}
	if aws.ToInt32(params.Ipv6AddressCount) > 0 {
		eni.Ipv6Addresses = append(eni.Ipv6Addresses, types.NetworkInterfaceIpv6Address{Ipv6Address: aws.String("2600:1f18::" + fmt.Sprint(m.nextID))})
	}

	copied := *eni
	return &ec2.CreateNetworkInterfaceOutput{NetworkInterface: &copied}, nil
}

// AttachNetworkInterface attaches an available ENI to an instance
func (m *MockEC2Client) AttachNetworkInterface(ctx context.Context, params *ec2.AttachNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.AttachNetworkInterfaceOutput, error) {
	if err := m.enter("AttachNetworkInterface"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	eniID := aws.ToString(params.NetworkInterfaceId)
	eni, ok := m.ENIs[eniID]
	if !ok {
		return nil, NewAPIError("InvalidNetworkInterfaceID.NotFound", fmt.Sprintf("The networkInterface ID '%s' does not exist", eniID))
	}
	if eni.Status == types.NetworkInterfaceStatusInUse {
		return nil, NewAPIError("InvalidNetworkInterface.InUse", fmt.Sprintf("Interface: [%s] in use", eniID))
	}

	instanceID := aws.ToString(params.InstanceId)
	if _, ok := m.Instances[instanceID]; !ok {
		return nil, NewAPIError("InvalidInstanceID.NotFound", fmt.Sprintf("The instance ID '%s' does not exist", instanceID))
	}
	for _, other := range m.ENIs {
		if other.Attachment != nil && aws.ToString(other.Attachment.InstanceId) == instanceID &&
			aws.ToInt32(other.Attachment.DeviceIndex) == aws.ToInt32(params.DeviceIndex) {
			return nil, NewAPIError("InvalidParameterValue", "Instance already has an interface attached at this device index")
		}
	}

	attachmentID := m.idLocked("eni-attach")
	eni.Status = types.NetworkInterfaceStatusInUse
	eni.Attachment = &types.NetworkInterfaceAttachment{
		AttachmentId: aws.String(attachmentID),
		InstanceId:   aws.String(instanceID),
		DeviceIndex:  params.DeviceIndex,
		Status:       types.AttachmentStatusAttached,
	}
	return &ec2.AttachNetworkInterfaceOutput{AttachmentId: aws.String(attachmentID)}, nil
}

// DetachNetworkInterface detaches an ENI immediately
func (m *MockEC2Client) DetachNetworkInterface(ctx context.Context, params *ec2.DetachNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.DetachNetworkInterfaceOutput, error) {
	if err := m.enter("DetachNetworkInterface"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	attachmentID := aws.ToString(params.AttachmentId)
	for _, eni := range m.ENIs {
		if eni.Attachment != nil && aws.ToString(eni.Attachment.AttachmentId) == attachmentID {
			eni.Attachment = nil
			eni.Status = types.NetworkInterfaceStatusAvailable
			return &ec2.DetachNetworkInterfaceOutput{}, nil
		}
	}
	return nil, NewAPIError("InvalidAttachmentID.NotFound", fmt.Sprintf("Interface attachment '%s' does not exist", attachmentID))
}

// DeleteNetworkInterface deletes an available ENI
func (m *MockEC2Client) DeleteNetworkInterface(ctx context.Context, params *ec2.DeleteNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.DeleteNetworkInterfaceOutput, error) {
	if err := m.enter("DeleteNetworkInterface"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	eniID := aws.ToString(params.NetworkInterfaceId)
	eni, ok := m.ENIs[eniID]
	if !ok {
		return nil, NewAPIError("InvalidNetworkInterfaceID.NotFound", fmt.Sprintf("The networkInterface ID '%s' does not exist", eniID))
	}
	if eni.Attachment != nil {
		return nil, NewAPIError("InvalidNetworkInterface.InUse", fmt.Sprintf("Network interface '%s' is currently in use", eniID))
	}
	delete(m.ENIs, eniID)
	return &ec2.DeleteNetworkInterfaceOutput{}, nil
}

// DescribeVpcs describes VPCs by ID
func (m *MockEC2Client) DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	if err := m.enter("DescribeVpcs"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []types.Vpc
	for _, id := range params.VpcIds {
		vpc, ok := m.VPCs[id]
		if !ok {
			return nil, NewAPIError("InvalidVpcID.NotFound", fmt.Sprintf("The vpc ID '%s' does not exist", id))
		}
		out = append(out, vpc)
	}
	return &ec2.DescribeVpcsOutput{Vpcs: out}, nil
}

// DescribeSubnets describes subnets by ID or vpc-id filter
func (m *MockEC2Client) DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	if err := m.enter("DescribeSubnets"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []types.Subnet
	if len(params.SubnetIds) > 0 {
		for _, id := range params.SubnetIds {
			subnet, ok := m.Subnets[id]
			if !ok {
				return nil, NewAPIError("InvalidSubnetID.NotFound", fmt.Sprintf("The subnet ID '%s' does not exist", id))
			}
			out = append(out, subnet)
		}
		return &ec2.DescribeSubnetsOutput{Subnets: out}, nil
	}

	for _, subnet := range m.Subnets {
		match := true
		for _, f := range params.Filters {
			if aws.ToString(f.Name) != "vpc-id" || !util.ContainsString(f.Values, aws.ToString(subnet.VpcId)) {
				match = false
			}
		}
		if match {
			out = append(out, subnet)
		}
	}
	return &ec2.DescribeSubnetsOutput{Subnets: out}, nil
}

// DescribeSecurityGroups supports the group-name and tag:Name filters
func (m *MockEC2Client) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if err := m.enter("DescribeSecurityGroups"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []types.SecurityGroup
	for _, group := range m.SecurityGroups {
		for _, f := range params.Filters {
			switch aws.ToString(f.Name) {
			case "group-name":
				if util.ContainsString(f.Values, aws.ToString(group.GroupName)) {
					out = append(out, group)
				}
			case "tag:Name":
				if util.ContainsString(f.Values, nameTag(group.Tags)) {
					out = append(out, group)
				}
			}
		}
	}
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: out}, nil
}

// AllocateAddress allocates an Elastic IP
func (m *MockEC2Client) AllocateAddress(ctx context.Context, params *ec2.AllocateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error) {
	if err := m.enter("AllocateAddress"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	allocationID := m.idLocked("eipalloc")
	publicIP := fmt.Sprintf("203.0.113.%d", len(m.Addresses)+1)
	m.Addresses[allocationID] = &types.Address{AllocationId: aws.String(allocationID), PublicIp: aws.String(publicIP)}
	return &ec2.AllocateAddressOutput{AllocationId: aws.String(allocationID), PublicIp: aws.String(publicIP)}, nil
}

// AssociateAddress maps an Elastic IP to a private address of an ENI
func (m *MockEC2Client) AssociateAddress(ctx context.Context, params *ec2.AssociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AssociateAddressOutput, error) {
	if err := m.enter("AssociateAddress"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	address, ok := m.Addresses[aws.ToString(params.AllocationId)]
	if !ok {
		return nil, NewAPIError("InvalidAllocationID.NotFound", "The allocation ID does not exist")
	}
	eni, ok := m.ENIs[aws.ToString(params.NetworkInterfaceId)]
	if !ok {
		return nil, NewAPIError("InvalidNetworkInterfaceID.NotFound", "The networkInterface ID does not exist")
	}

	associationID := m.idLocked("eipassoc")
	association := &types.NetworkInterfaceAssociation{
		AllocationId:  address.AllocationId,
		AssociationId: aws.String(associationID),
		PublicIp:      address.PublicIp,
	}
	address.AssociationId = aws.String(associationID)
	address.NetworkInterfaceId = eni.NetworkInterfaceId

	eni.Association = association
	for i := range eni.PrivateIpAddresses {
		if aws.ToString(eni.PrivateIpAddresses[i].PrivateIpAddress) == aws.ToString(params.PrivateIpAddress) {
			eni.PrivateIpAddresses[i].Association = association
		}
	}
	return &ec2.AssociateAddressOutput{AssociationId: aws.String(associationID)}, nil
}

// DisassociateAddress removes an Elastic IP mapping
func (m *MockEC2Client) DisassociateAddress(ctx context.Context, params *ec2.DisassociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateAddressOutput, error) {
	if err := m.enter("DisassociateAddress"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	associationID := aws.ToString(params.AssociationId)
	for _, address := range m.Addresses {
		if aws.ToString(address.AssociationId) != associationID {
			continue
		}
		if eni, ok := m.ENIs[aws.ToString(address.NetworkInterfaceId)]; ok {
			eni.Association = nil
			for i := range eni.PrivateIpAddresses {
				eni.PrivateIpAddresses[i].Association = nil
			}
		}
		address.AssociationId = nil
		address.NetworkInterfaceId = nil
		return &ec2.DisassociateAddressOutput{}, nil
	}
	return nil, NewAPIError("InvalidAssociationID.NotFound", "The association ID does not exist")
}

// ReleaseAddress releases an unassociated Elastic IP
func (m *MockEC2Client) ReleaseAddress(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error) {
	if err := m.enter("ReleaseAddress"); err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	allocationID := aws.ToString(params.AllocationId)
	address, ok := m.Addresses[allocationID]
	if !ok {
		return nil, NewAPIError("InvalidAllocationID.NotFound", "The allocation ID does not exist")
	}
	if address.AssociationId != nil {
		return nil, NewAPIError("InvalidIPAddress.InUse", "Address is in use")
	}
	delete(m.Addresses, allocationID)
	return &ec2.ReleaseAddressOutput{}, nil
}

// newENILocked creates an available ENI with the given or next free address
func (m *MockEC2Client) newENILocked(subnetID, privateIP string) *types.NetworkInterface {
	subnet := m.Subnets[subnetID]
	if privateIP == "" {
		privateIP = m.allocateLocked(subnet)
	}

	eniID := m.idLocked("eni")
	eni := &types.NetworkInterface{
		NetworkInterfaceId: aws.String(eniID),
		SubnetId:           aws.String(subnetID),
		VpcId:              subnet.VpcId,
		MacAddress:         aws.String(fmt.Sprintf("02:00:00:00:%02x:%02x", m.nextID/256%256, m.nextID%256)),
		Status:             types.NetworkInterfaceStatusAvailable,
	}
	if privateIP != "" {
		eni.PrivateIpAddress = aws.String(privateIP)
		eni.PrivateIpAddresses = []types.NetworkInterfacePrivateIpAddress{
			{PrivateIpAddress: aws.String(privateIP), Primary: aws.Bool(true)},
		}
	}
	m.ENIs[eniID] = eni
	return eni
}

// allocateLocked returns the next free host address, skipping the network
// address and the addresses EC2 reserves at the start of a subnet
func (m *MockEC2Client) allocateLocked(subnet types.Subnet) string {
	_, network, err := net.ParseCIDR(aws.ToString(subnet.CidrBlock))
	if err != nil {
		return ""
	}
	subnetID := aws.ToString(subnet.SubnetId)
	host := m.nextHosts[subnetID]
	if host < 4 {
		host = 4
	}
	for {
		ip, err := cidr.Host(network, host)
		if err != nil {
			return ""
		}
		host++
		if !m.addressInUseLocked(ip.String()) {
			m.nextHosts[subnetID] = host
			return ip.String()
		}
	}
}

func (m *MockEC2Client) addressInUseLocked(ip string) bool {
	for _, eni := range m.ENIs {
		if aws.ToString(eni.PrivateIpAddress) == ip {
			return true
		}
	}
	return false
}

func (m *MockEC2Client) idLocked(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%08x", prefix, m.nextID)
}

func nameTags(name string) []types.Tag {
	if name == "" {
		return nil
	}
	return []types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}}
}
