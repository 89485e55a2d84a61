// Package assign attaches an instance to a VPC subnet, creating a
// configuration-profile interface or a per-instance interface depending on
// the generation the instance uses.
package assign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/cache"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
)

// Invalidator marks cached reads stale after a change
type Invalidator interface {
	Invalidate(ctx context.Context, affected cache.Affected)
}

// Options configures an Orchestrator
type Options struct {
	// DualStack enables IPv6 SLAAC requests
	DualStack bool
	// Invalidator is notified after each successful assignment; may be nil
	Invalidator Invalidator
	// Recent records successful assignments; a new record is created when nil
	Recent *RecentlyAssigned
	// Metrics may be nil
	Metrics *observability.Metrics
	// OnStateChange is called on every state transition
	OnStateChange func(from, to State)
}

// Orchestrator drives assignment submissions. Each Assign call runs its
// steps strictly in order; the last submission's state is kept for callers
// that display progress.
type Orchestrator struct {
	client      api.InfraAPI
	invalidator Invalidator
	recent      *RecentlyAssigned
	dualStack   bool
	obs         *observability.StructuredLogger
	Logger      logr.Logger

	onStateChange func(from, to State)
	state         State
	mutex         sync.RWMutex
}

// NewOrchestrator creates an Orchestrator over client
func NewOrchestrator(client api.InfraAPI, logger logr.Logger, opts Options) *Orchestrator {
	log := logger.WithName("assignment-orchestrator")
	recent := opts.Recent
	if recent == nil {
		recent = NewRecentlyAssigned()
	}
	return &Orchestrator{
		client:        client,
		invalidator:   opts.Invalidator,
		recent:        recent,
		dualStack:     opts.DualStack,
		obs:           observability.NewStructuredLogger(log, opts.Metrics),
		Logger:        log,
		onStateChange: opts.OnStateChange,
	}
}

// State returns the state of the latest submission
func (o *Orchestrator) State() State {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.state
}

// Recent returns the record of successful assignments
func (o *Orchestrator) Recent() *RecentlyAssigned {
	return o.recent
}

// submission tracks the state of one Assign call
type submission struct {
	o     *Orchestrator
	state State
}

func (o *Orchestrator) newSubmission() *submission {
	o.mutex.Lock()
	o.state = StateIdle
	o.mutex.Unlock()
	return &submission{o: o, state: StateIdle}
}

func (s *submission) transition(to State) {
	from := s.state
	if !canTransition(from, to) {
		panic(fmt.Sprintf("invalid assignment state transition %s -> %s", from, to))
	}
	s.state = to

	s.o.mutex.Lock()
	s.o.state = to
	s.o.mutex.Unlock()

	s.o.Logger.V(1).Info("Assignment state changed", "from", from.String(), "to", to.String())
	if s.o.onStateChange != nil {
		s.o.onStateChange(from, to)
	}
}

// Assign creates an interface for req. Remote failures are returned as the
// remote error list, unwrapped; nothing is retried.
func (o *Orchestrator) Assign(ctx context.Context, req netif.AssignmentRequest) (*Assignment, error) {
	opCtx := observability.NewOperationContext(observability.OperationAssign).WithRequest(req)
	sub := o.newSubmission()
	o.obs.LogOperationStart(ctx, opCtx, "Starting assignment")

	sub.transition(StateResolvingConfigs)

	instance, err := o.client.GetInstance(ctx, req.InstanceID)
	if err != nil {
		return o.fail(ctx, sub, opCtx, err)
	}
	opCtx.WithInstance(*instance)

	if !req.AutoAssignIPv4 && req.ChosenIPv4 == "" {
		return o.fail(ctx, sub, opCtx, api.NewFieldError(addressField(instance.InterfaceGeneration), "an IPv4 address is required when auto-assign is off"))
	}

	var configID string
	if !instance.IsModern() {
		configID, err = o.resolveConfig(ctx, *instance, req.ConfigID)
		if err != nil {
			return o.fail(ctx, sub, opCtx, err)
		}
		opCtx.ConfigID = configID
	}

	sub.transition(StateSubmitting)

	var created netif.NetworkInterface
	vpcID := req.VPCID
	if instance.IsModern() {
		iface, err := o.client.CreateInterface(ctx, instance.ID, BuildModernPayload(req, o.dualStack))
		if err != nil {
			return o.fail(ctx, sub, opCtx, err)
		}
		if vpcID == "" && iface.VPC != nil {
			vpcID = iface.VPC.VPCID
		}
		created = iface
	} else {
		iface, err := o.client.AppendConfigInterface(ctx, instance.ID, configID, BuildLegacyPayload(req, o.dualStack))
		if err != nil {
			return o.fail(ctx, sub, opCtx, err)
		}
		iface.ConfigID = configID
		if vpcID == "" {
			vpcID = iface.VPCID
		}
		created = iface
	}

	sub.transition(StateSucceeded)

	assignment := Assignment{
		InstanceID: instance.ID,
		VPCID:      vpcID,
		SubnetID:   req.SubnetID,
		ConfigID:   configID,
		Generation: instance.InterfaceGeneration,
		Interface:  created,
		AssignedAt: time.Now(),
	}
	o.recent.Add(assignment)

	if o.invalidator != nil {
		o.invalidator.Invalidate(ctx, cache.Affected{
			VPCID:      vpcID,
			SubnetID:   req.SubnetID,
			InstanceID: instance.ID,
			ConfigID:   configID,
		})
	}

	opCtx.InterfaceID = created.InterfaceID()
	o.obs.LogOperationSuccess(ctx, opCtx, "Assigned instance to subnet")

	if !o.dualStack && req.AssignIPv6 {
		o.obs.LogOperationWarning(ctx, opCtx, "IPv6 was requested but dual-stack is disabled; the interface has no IPv6 range")
	}
	return &assignment, nil
}

// resolveConfig picks the configuration profile a legacy interface is
// appended to. A single profile is chosen automatically; with more than one
// the caller must name it.
func (o *Orchestrator) resolveConfig(ctx context.Context, instance netif.Instance, requested string) (string, error) {
	profiles, err := o.client.ListConfigs(ctx, instance.ID)
	if err != nil {
		return "", err
	}

	switch {
	case len(profiles) == 0:
		return "", &netif.ResolutionError{
			InstanceID: instance.ID,
			Reason:     "instance has no configuration profiles",
		}
	case requested == "" && len(profiles) == 1:
		return profiles[0].ID, nil
	case requested == "":
		return "", api.NewFieldError("configId", "a configuration profile must be selected when the instance has more than one")
	}

	for _, p := range profiles {
		if p.ID == requested {
			return p.ID, nil
		}
	}
	return "", api.NewFieldError("configId", fmt.Sprintf("configuration profile %s does not belong to instance %s", requested, instance.ID))
}

func (o *Orchestrator) fail(ctx context.Context, sub *submission, opCtx *observability.OperationContext, err error) (*Assignment, error) {
	sub.transition(StateFailed)
	o.obs.LogOperationError(ctx, opCtx, err, "Assignment failed")
	return nil, err
}

// addressField is the request property a missing address is reported on
func addressField(generation netif.Generation) string {
	if generation == netif.GenerationModern {
		return "vpc.ipv4.addresses[0].address"
	}
	return "ipv4.vpc"
}
