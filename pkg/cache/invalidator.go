package cache

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
)

// Affected names the state an assignment or unassignment changed
type Affected struct {
	VPCID      string
	SubnetID   string
	InstanceID string
	// ConfigID is set when the interface lived in a configuration profile
	ConfigID string
}

// Generation returns the interface generation whose list went stale
func (a Affected) Generation() netif.Generation {
	if a.ConfigID != "" {
		return netif.GenerationLegacy
	}
	return netif.GenerationModern
}

type staleKey struct {
	kind string
	key  string
}

// Invalidator marks cached queries stale after a workflow completes
type Invalidator struct {
	store *Store
	obs   *observability.StructuredLogger
}

// NewInvalidator creates an Invalidator over store. metrics may be nil.
func NewInvalidator(store *Store, logger logr.Logger, metrics *observability.Metrics) *Invalidator {
	return &Invalidator{
		store: store,
		obs:   observability.NewStructuredLogger(logger.WithName("cache-invalidator"), metrics),
	}
}

// Invalidate marks the VPC aggregate, the subnet and the instance's
// configuration profile list (legacy) or interface list (modern) stale.
// The keys are independent and deleting a missing key is a no-op, so
// Invalidate may be called any number of times.
func (i *Invalidator) Invalidate(ctx context.Context, affected Affected) {
	opCtx := observability.NewOperationContext(observability.OperationInvalidate).
		WithJob(netif.UnassignmentJob{
			InstanceID: affected.InstanceID,
			ConfigID:   affected.ConfigID,
			SubnetID:   affected.SubnetID,
		})

	keys := []staleKey{
		{KindVPC, VPCKey(affected.VPCID)},
		{KindSubnet, SubnetKey(affected.VPCID, affected.SubnetID)},
	}
	if affected.Generation() == netif.GenerationLegacy {
		keys = append(keys, staleKey{KindConfigs, ConfigsKey(affected.InstanceID)})
	} else {
		keys = append(keys, staleKey{KindInterfaces, InterfacesKey(affected.InstanceID)})
	}

	for _, k := range keys {
		i.store.Delete(k.key)
		i.obs.LogInvalidation(ctx, opCtx, k.kind, k.key)
	}
}
