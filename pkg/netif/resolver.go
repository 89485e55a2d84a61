package netif

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
)

// InterfaceLister reads the interfaces an instance currently carries
type InterfaceLister interface {
	ListConfigs(ctx context.Context, instanceID string) ([]ConfigProfile, error)
	ListInterfaces(ctx context.Context, instanceID string) ([]ModernInterface, error)
}

// BootState is the configuration profile an instance last booted with.
// Known is false when the instance has never booted or the signal is
// unavailable.
type BootState struct {
	ConfigID string
	Known    bool
}

// BootedConfigSource supplies the booted configuration profile of an
// instance. It is computed outside this package.
type BootedConfigSource interface {
	BootedConfig(ctx context.Context, instance Instance) (BootState, error)
}

// UnknownBootState reports every instance's boot state as unknown
type UnknownBootState struct{}

// BootedConfig implements BootedConfigSource
func (UnknownBootState) BootedConfig(context.Context, Instance) (BootState, error) {
	return BootState{}, nil
}

// StaticBootedConfigs maps instance IDs to their booted profile IDs
type StaticBootedConfigs map[string]string

// BootedConfig implements BootedConfigSource
func (s StaticBootedConfigs) BootedConfig(_ context.Context, instance Instance) (BootState, error) {
	configID, ok := s[instance.ID]
	if !ok {
		return BootState{}, nil
	}
	return BootState{ConfigID: configID, Known: true}, nil
}

// Resolution is the interface an instance has on a subnet
type Resolution struct {
	Instance  Instance
	Interface NetworkInterface
	// Profile is the owning configuration profile; nil for modern interfaces
	Profile *ConfigProfile
	Active  bool
	// BootState is the signal Active was derived from for legacy interfaces.
	// When it is unknown, Active is the interface's own reported flag.
	BootState BootState
}

// ConfigID returns the owning profile ID, or "" for modern interfaces
func (r *Resolution) ConfigID() string {
	if r.Profile == nil {
		return ""
	}
	return r.Profile.ID
}

// UnrecommendedRouting runs HasUnrecommendedRouting against the resolution
func (r *Resolution) UnrecommendedRouting() bool {
	return HasUnrecommendedRouting(r.Interface, r.Active, r.Profile)
}

// Job returns the unassignment job that would remove this interface
func (r *Resolution) Job() UnassignmentJob {
	return UnassignmentJob{
		InstanceID:  r.Instance.ID,
		ConfigID:    r.ConfigID(),
		InterfaceID: r.Interface.InterfaceID(),
		SubnetID:    r.Interface.SubnetID(),
	}
}

// ResolutionError means an instance has nothing usable to act on
type ResolutionError struct {
	InstanceID string
	SubnetID   string
	Reason     string
}

func (e *ResolutionError) Error() string {
	if e.SubnetID == "" {
		return fmt.Sprintf("instance %s: %s", e.InstanceID, e.Reason)
	}
	return fmt.Sprintf("instance %s on subnet %s: %s", e.InstanceID, e.SubnetID, e.Reason)
}

// InstanceError ties an error to the instance it occurred for
type InstanceError struct {
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("instance %s: %v", e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Resolver finds the interface an instance has on a subnet, whichever
// generation the instance uses
type Resolver struct {
	lister InterfaceLister
	booted BootedConfigSource
	Logger logr.Logger
}

// NewResolver creates a new Resolver. A nil booted source treats every
// boot state as unknown.
func NewResolver(lister InterfaceLister, booted BootedConfigSource, logger logr.Logger) *Resolver {
	if booted == nil {
		booted = UnknownBootState{}
	}
	return &Resolver{
		lister: lister,
		booted: booted,
		Logger: logger.WithName("interface-resolver"),
	}
}

// ResolveActiveInterface returns the instance's interface on subnetID.
// A nil resolution with a nil error means the instance is not assigned.
func (r *Resolver) ResolveActiveInterface(ctx context.Context, instance Instance, subnetID string) (*Resolution, error) {
	log := r.Logger.WithValues("instanceID", instance.ID, "subnetID", subnetID, "generation", instance.InterfaceGeneration)

	if instance.IsModern() {
		ifaces, err := r.lister.ListInterfaces(ctx, instance.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list interfaces of instance %s: %w", instance.ID, err)
		}
		for i := range ifaces {
			if ifaces[i].SubnetID() != subnetID {
				continue
			}
			iface := ifaces[i]
			iface.InstanceID = instance.ID
			log.V(1).Info("Resolved modern interface", "interfaceID", iface.ID)
			return &Resolution{
				Instance:  instance,
				Interface: &iface,
				Active:    true,
			}, nil
		}
		log.V(1).Info("No modern interface on subnet")
		return nil, nil
	}

	profiles, err := r.lister.ListConfigs(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list configuration profiles of instance %s: %w", instance.ID, err)
	}

	boot, err := r.booted.BootedConfig(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to determine booted configuration of instance %s: %w", instance.ID, err)
	}

	var match *Resolution
	for p := range profiles {
		idx := profiles[p].VPCInterface(subnetID)
		if idx < 0 {
			continue
		}
		profile := profiles[p]
		iface := profile.Interfaces[idx]
		iface.ConfigID = profile.ID

		res := &Resolution{
			Instance:  instance,
			Interface: &iface,
			Profile:   &profile,
			BootState: boot,
		}
		if boot.Known {
			res.Active = boot.ConfigID == profile.ID
		} else {
			res.Active = iface.Active
		}

		// An active profile wins over any other profile on the same subnet
		if res.Active {
			match = res
			break
		}
		if match == nil {
			match = res
		}
	}

	if match == nil {
		log.V(1).Info("No configuration profile interface on subnet", "profiles", len(profiles))
		return nil, nil
	}
	log.V(1).Info("Resolved legacy interface",
		"interfaceID", match.Interface.InterfaceID(),
		"configID", match.ConfigID(),
		"active", match.Active,
		"bootStateKnown", boot.Known)
	return match, nil
}

// ResolveUnassignmentJob resolves the job that removes instance from
// subnetID. An instance with no interface there yields a ResolutionError.
func (r *Resolver) ResolveUnassignmentJob(ctx context.Context, instance Instance, subnetID string) (UnassignmentJob, error) {
	res, err := r.ResolveActiveInterface(ctx, instance, subnetID)
	if err != nil {
		return UnassignmentJob{}, err
	}
	if res == nil {
		return UnassignmentJob{}, &ResolutionError{
			InstanceID: instance.ID,
			SubnetID:   subnetID,
			Reason:     "no interface is attached to the subnet",
		}
	}
	return res.Job(), nil
}

// BuildUnassignmentJobs resolves the interface each instance has on
// subnetID, one instance at a time. Instances with no interface there, or
// whose lookup fails, are returned as InstanceErrors rather than jobs.
func (r *Resolver) BuildUnassignmentJobs(ctx context.Context, instances []Instance, subnetID string) ([]UnassignmentJob, []*InstanceError) {
	jobs := make([]UnassignmentJob, 0, len(instances))
	var failures []*InstanceError

	for _, instance := range instances {
		job, err := r.ResolveUnassignmentJob(ctx, instance, subnetID)
		if err != nil {
			failures = append(failures, &InstanceError{InstanceID: instance.ID, Err: err})
			continue
		}
		jobs = append(jobs, job)
	}

	r.Logger.Info("Built unassignment jobs", "subnetID", subnetID, "jobs", len(jobs), "unresolved", len(failures))
	return jobs, failures
}
