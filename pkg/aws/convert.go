package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// toModernInterface converts an ENI into a modern interface. The ENI at
// device index 0 carries the instance's default route.
func toModernInterface(eni types.NetworkInterface) netif.ModernInterface {
	iface := netif.ModernInterface{
		ID:         aws.ToString(eni.NetworkInterfaceId),
		MACAddress: aws.ToString(eni.MacAddress),
	}

	if eni.Attachment != nil {
		iface.InstanceID = aws.ToString(eni.Attachment.InstanceId)
		iface.DefaultRoute.IPv4 = aws.ToInt32(eni.Attachment.DeviceIndex) == 0
		iface.DefaultRoute.IPv6 = iface.DefaultRoute.IPv4 && len(eni.Ipv6Addresses) > 0
	}

	vpc := &netif.ModernVPC{
		VPCID:    aws.ToString(eni.VpcId),
		SubnetID: aws.ToString(eni.SubnetId),
	}

	for _, addr := range eni.PrivateIpAddresses {
		address := netif.ModernAddress{
			Address: aws.ToString(addr.PrivateIpAddress),
			Primary: aws.ToBool(addr.Primary),
		}
		if addr.Association != nil {
			address.NAT1To1Address = aws.ToString(addr.Association.PublicIp)
		}
		vpc.IPv4.Addresses = append(vpc.IPv4.Addresses, address)
	}

	// Some responses only carry the primary address at the top level
	if len(vpc.IPv4.Addresses) == 0 && eni.PrivateIpAddress != nil {
		address := netif.ModernAddress{Address: aws.ToString(eni.PrivateIpAddress), Primary: true}
		if eni.Association != nil {
			address.NAT1To1Address = aws.ToString(eni.Association.PublicIp)
		}
		vpc.IPv4.Addresses = append(vpc.IPv4.Addresses, address)
	}

	for _, prefix := range eni.Ipv4Prefixes {
		vpc.IPv4.Ranges = append(vpc.IPv4.Ranges, netif.ModernRange{Range: aws.ToString(prefix.Ipv4Prefix)})
	}

	iface.VPC = vpc
	return iface
}

// toSubnet converts an EC2 subnet, labelled by its Name tag
func toSubnet(s types.Subnet, attached []string) netif.Subnet {
	subnet := netif.Subnet{
		ID:                  aws.ToString(s.SubnetId),
		Label:               nameTag(s.Tags),
		IPv4CIDR:            aws.ToString(s.CidrBlock),
		AttachedInstanceIDs: attached,
	}
	for _, assoc := range s.Ipv6CidrBlockAssociationSet {
		if assoc.Ipv6CidrBlock != nil {
			subnet.IPv6CIDR = aws.ToString(assoc.Ipv6CidrBlock)
			break
		}
	}
	return subnet
}

// toVPC converts an EC2 VPC without its subnets
func toVPC(v types.Vpc, region string) netif.VPC {
	return netif.VPC{
		ID:               aws.ToString(v.VpcId),
		Label:            nameTag(v.Tags),
		Region:           region,
		DualStackEnabled: len(v.Ipv6CidrBlockAssociationSet) > 0,
	}
}

// toInstance converts an EC2 instance
func toInstance(i types.Instance, region string) netif.Instance {
	return netif.Instance{
		ID:                  aws.ToString(i.InstanceId),
		Label:               nameTag(i.Tags),
		Region:              region,
		InterfaceGeneration: netif.GenerationModern,
	}
}

func nameTag(tags []types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}
