package aws

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
)

// errLegacyUnsupported is returned for configuration-profile calls
func errLegacyUnsupported() *api.Errors {
	return &api.Errors{
		StatusCode: http.StatusBadRequest,
		List:       []api.APIError{{Reason: "configuration profile interfaces are not supported by this backend"}},
	}
}

// mapError converts an EC2 API error into the remote error list shape.
// Other errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	reason := apiErr.ErrorMessage()
	if reason == "" {
		reason = apiErr.ErrorCode()
	}

	return &api.Errors{
		StatusCode: statusForCode(apiErr.ErrorCode(), apiErr.ErrorFault()),
		List:       []api.APIError{{Field: fieldForCode(apiErr.ErrorCode()), Reason: reason}},
	}
}

func statusForCode(code string, fault smithy.ErrorFault) int {
	switch {
	case strings.HasSuffix(code, ".NotFound") || strings.HasSuffix(code, "NotFound"):
		return http.StatusNotFound
	case code == "RequestLimitExceeded" || strings.HasPrefix(code, "Throttling"):
		return http.StatusTooManyRequests
	case code == "UnauthorizedOperation" || code == "AuthFailure":
		return http.StatusForbidden
	case code == "InvalidIPAddress.InUse" || strings.HasSuffix(code, ".InUse"):
		return http.StatusConflict
	case fault == smithy.FaultServer:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// fieldForCode routes an EC2 error code to the request property it concerns
func fieldForCode(code string) string {
	switch {
	case strings.HasPrefix(code, "InvalidIPAddress"), code == "PrivateIpAddressLimitExceeded":
		return "vpc.ipv4.addresses"
	case strings.HasPrefix(code, "InvalidSubnetID"):
		return "vpc.subnet_id"
	case strings.HasPrefix(code, "InvalidGroup"), strings.HasPrefix(code, "InvalidSecurityGroupID"):
		return "firewall_id"
	case strings.HasPrefix(code, "InvalidPrefix"), code == "PrefixLimitExceeded":
		return "vpc.ipv4.ranges"
	default:
		return ""
	}
}
