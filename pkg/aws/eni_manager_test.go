package aws

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/util/wait"
)

// lostDeleteClient deletes the ENI on the first call but reports a
// throttling error, as if the response never arrived
type lostDeleteClient struct {
	*MockEC2Client
	deletes int
}

func (c *lostDeleteClient) DeleteNetworkInterface(ctx context.Context, params *ec2.DeleteNetworkInterfaceInput, optFns ...func(*ec2.Options)) (*ec2.DeleteNetworkInterfaceOutput, error) {
	c.deletes++
	out, err := c.MockEC2Client.DeleteNetworkInterface(ctx, params, optFns...)
	if c.deletes == 1 && err == nil {
		return nil, NewAPIError("RequestLimitExceeded", "Request limit exceeded.")
	}
	return out, err
}

func newTestENIManager(t *testing.T, client EC2API) *EC2ENIManager {
	cfg := BackendConfig{Backoff: wait.Backoff{Duration: time.Millisecond, Factor: 1.0, Steps: 3}}
	return NewBackendFromClient(client, cfg, testr.New(t), nil).eniManager.(*EC2ENIManager)
}

func TestDeleteENI_RetriedNotFoundIsSuccess(t *testing.T) {
	mockClient := NewMockEC2Client()
	mockClient.AddSubnet("vpc-1", "subnet-a", "10.0.1.0/24", "app")
	mockClient.mutex.Lock()
	eniID := *mockClient.newENILocked("subnet-a", "").NetworkInterfaceId
	mockClient.mutex.Unlock()

	client := &lostDeleteClient{MockEC2Client: mockClient}
	manager := newTestENIManager(t, client)

	if err := manager.DeleteENI(context.Background(), eniID); err != nil {
		t.Fatalf("Expected the retried delete to succeed, got %v", err)
	}
	assert.Equal(t, 2, client.deletes)
	assert.NotContains(t, mockClient.ENIs, eniID)
}

func TestDeleteENI_FirstAttemptNotFoundIsReturned(t *testing.T) {
	mockClient := NewMockEC2Client()
	manager := newTestENIManager(t, mockClient)

	err := manager.DeleteENI(context.Background(), "eni-missing")
	assertStatus(t, err, http.StatusNotFound)
	assert.Equal(t, 1, mockClient.CallCount("DeleteNetworkInterface"))
}
