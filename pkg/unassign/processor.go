// Package unassign detaches a set of instances from a subnet. Deletions are
// dispatched concurrently; each job's outcome is independent and successes
// are never rolled back when other jobs fail.
package unassign

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/api"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/cache"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
)

// Invalidator marks cached reads stale after a change
type Invalidator interface {
	Invalidate(ctx context.Context, affected cache.Affected)
}

// Options configures a Processor
type Options struct {
	// MaxConcurrent limits in-flight deletions; 0 dispatches every job at once
	MaxConcurrent int
	// Invalidator is notified once per successful job; may be nil
	Invalidator Invalidator
	// Booted supplies the booted profile used to pick a legacy interface
	Booted netif.BootedConfigSource
	// Metrics may be nil
	Metrics *observability.Metrics
}

// JobFailure is one job that did not complete
type JobFailure struct {
	InstanceID string
	// Job is the zero value when the failure happened while building jobs
	Job netif.UnassignmentJob
	// Err is the remote error list or resolution error, unwrapped
	Err error
}

// BatchResult holds the outcome of every job of a batch. Both lists are in
// completion order.
type BatchResult struct {
	Succeeded []string
	Failed    []JobFailure
}

// Err consolidates every failure into a single error, or returns nil when
// all jobs succeeded
func (r BatchResult) Err() error {
	var result *multierror.Error
	for _, f := range r.Failed {
		result = multierror.Append(result, &netif.InstanceError{InstanceID: f.InstanceID, Err: f.Err})
	}
	if result != nil {
		result.ErrorFormat = consolidatedFormat
	}
	return result.ErrorOrNil()
}

func consolidatedFormat(errs []error) string {
	msg := fmt.Sprintf("%d unassignment(s) failed:", len(errs))
	for _, err := range errs {
		msg += "\n\t* " + err.Error()
	}
	return msg
}

// Processor runs unassignment batches
type Processor struct {
	client        api.InterfaceManager
	resolver      *netif.Resolver
	invalidator   Invalidator
	maxConcurrent int
	metrics       *observability.Metrics
	obs           *observability.StructuredLogger
	Logger        logr.Logger
}

// NewProcessor creates a Processor over client
func NewProcessor(client api.InterfaceManager, logger logr.Logger, opts Options) *Processor {
	log := logger.WithName("unassign-processor")
	return &Processor{
		client:        client,
		resolver:      netif.NewResolver(client, opts.Booted, log),
		invalidator:   opts.Invalidator,
		maxConcurrent: opts.MaxConcurrent,
		metrics:       opts.Metrics,
		obs:           observability.NewStructuredLogger(log, opts.Metrics),
		Logger:        log,
	}
}

type jobResult struct {
	instanceID string
	// job is the zero value when resolution failed
	job netif.UnassignmentJob
	err error
}

// UnassignBatch deletes the interface of every job concurrently. vpcID is
// the VPC owning the jobs' subnet and scopes cache invalidation. A failing
// job never cancels or rolls back another one.
func (p *Processor) UnassignBatch(ctx context.Context, vpcID string, jobs []netif.UnassignmentJob) BatchResult {
	return p.dispatch(len(jobs), func(i int) jobResult {
		job := jobs[i]
		return jobResult{instanceID: job.InstanceID, job: job, err: p.unassign(ctx, vpcID, job)}
	})
}

// dispatch runs work once per index in its own goroutine, with at most
// maxConcurrent running when a limit is set
func (p *Processor) dispatch(count int, work func(i int) jobResult) BatchResult {
	var result BatchResult
	if count == 0 {
		return result
	}

	p.Logger.Info("Unassigning interfaces", "jobs", count, "maxConcurrent", p.maxConcurrent)

	var sem chan struct{}
	if p.maxConcurrent > 0 {
		sem = make(chan struct{}, p.maxConcurrent)
	}
	var wg sync.WaitGroup
	resultChan := make(chan jobResult, count)

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			resultChan <- work(i)
		}(i)
	}

	wg.Wait()
	close(resultChan)

	for r := range resultChan {
		if r.err != nil {
			result.Failed = append(result.Failed, JobFailure{InstanceID: r.instanceID, Job: r.job, Err: r.err})
			continue
		}
		result.Succeeded = append(result.Succeeded, r.instanceID)
	}

	if len(result.Failed) == 0 {
		p.Logger.Info("All unassignments succeeded", "count", len(result.Succeeded))
	} else {
		p.Logger.Info("Some unassignments failed", "succeeded", len(result.Succeeded), "failed", len(result.Failed))
	}
	return result
}

// unassign deletes one interface and invalidates what it changed
func (p *Processor) unassign(ctx context.Context, vpcID string, job netif.UnassignmentJob) error {
	opCtx := observability.NewOperationContext(observability.OperationUnassign).WithJob(job)
	p.obs.LogOperationStart(ctx, opCtx, "Deleting interface")

	if p.metrics != nil {
		p.metrics.UpdateUnassignInFlight(1)
		defer p.metrics.UpdateUnassignInFlight(-1)
	}

	if err := p.client.DeleteInterface(ctx, job.InstanceID, job.ConfigID, job.InterfaceID); err != nil {
		p.obs.LogOperationError(ctx, opCtx, err, "Failed to delete interface")
		return err
	}

	if p.invalidator != nil {
		p.invalidator.Invalidate(ctx, cache.Affected{
			VPCID:      vpcID,
			SubnetID:   job.SubnetID,
			InstanceID: job.InstanceID,
			ConfigID:   job.ConfigID,
		})
	}
	p.obs.LogOperationSuccess(ctx, opCtx, "Deleted interface")
	return nil
}

// Run unassigns the selected instances from subnetID. Instances that are
// not selected are skipped; a nil selection selects nothing. Each instance
// is resolved and then deleted by the same worker, so a slow lookup only
// delays its own deletion. Instances with nothing to delete are reported
// as failures. Every success leaves the selection as soon as its delete
// returns, whether or not other jobs failed.
func (p *Processor) Run(ctx context.Context, selection *Selection, vpcID, subnetID string, instances []netif.Instance) BatchResult {
	if selection == nil {
		p.Logger.V(1).Info("No selection, nothing to unassign", "subnetID", subnetID)
		return BatchResult{}
	}

	selected := make([]netif.Instance, 0, len(instances))
	for _, instance := range instances {
		if selection.Contains(instance.ID) {
			selected = append(selected, instance)
		}
	}

	result := p.dispatch(len(selected), func(i int) jobResult {
		instance := selected[i]
		job, err := p.resolver.ResolveUnassignmentJob(ctx, instance, subnetID)
		if err != nil {
			return jobResult{instanceID: instance.ID, err: err}
		}
		if err := p.unassign(ctx, vpcID, job); err != nil {
			return jobResult{instanceID: instance.ID, job: job, err: err}
		}
		selection.Remove(instance.ID)
		return jobResult{instanceID: instance.ID, job: job}
	})

	if err := result.Err(); err != nil {
		p.Logger.Error(err, "Unassignment batch finished with failures", "subnetID", subnetID)
	}
	return result
}
