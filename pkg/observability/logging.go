// Package observability provides structured operation logging and
// Prometheus metrics for subnet interface management.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/retry"
)

// Operation types recorded by StructuredLogger
const (
	OperationAssign     = "assign"
	OperationUnassign   = "unassign"
	OperationInvalidate = "invalidate"
)

// StructuredLogger provides structured logging with consistent fields
type StructuredLogger struct {
	logger  logr.Logger
	metrics *Metrics
}

// NewStructuredLogger creates a new structured logger. metrics may be nil.
func NewStructuredLogger(logger logr.Logger, metrics *Metrics) *StructuredLogger {
	return &StructuredLogger{
		logger:  logger,
		metrics: metrics,
	}
}

// Logger returns the underlying logger
func (sl *StructuredLogger) Logger() logr.Logger {
	return sl.logger
}

// OperationContext holds context information for an operation
type OperationContext struct {
	OperationID   string
	OperationType string
	InstanceID    string
	SubnetID      string
	ConfigID      string
	InterfaceID   string
	Generation    netif.Generation
	StartTime     time.Time
	Metadata      map[string]interface{}
}

// NewOperationContext creates a new operation context
func NewOperationContext(operationType string) *OperationContext {
	return &OperationContext{
		OperationID:   generateOperationID(),
		OperationType: operationType,
		StartTime:     time.Now(),
		Metadata:      make(map[string]interface{}),
	}
}

// WithRequest adds assignment request information to the context
func (oc *OperationContext) WithRequest(req netif.AssignmentRequest) *OperationContext {
	oc.InstanceID = req.InstanceID
	oc.SubnetID = req.SubnetID
	oc.ConfigID = req.ConfigID
	return oc
}

// WithInstance adds instance information to the context
func (oc *OperationContext) WithInstance(instance netif.Instance) *OperationContext {
	oc.InstanceID = instance.ID
	oc.Generation = instance.InterfaceGeneration
	return oc
}

// WithJob adds unassignment job information to the context
func (oc *OperationContext) WithJob(job netif.UnassignmentJob) *OperationContext {
	oc.InstanceID = job.InstanceID
	oc.SubnetID = job.SubnetID
	oc.ConfigID = job.ConfigID
	oc.InterfaceID = job.InterfaceID
	oc.Generation = job.Generation()
	return oc
}

// WithMetadata adds metadata to the context
func (oc *OperationContext) WithMetadata(key string, value interface{}) *OperationContext {
	oc.Metadata[key] = value
	return oc
}

// Duration returns the elapsed time since the operation started
func (oc *OperationContext) Duration() time.Duration {
	return time.Since(oc.StartTime)
}

// LogFields returns structured log fields for this context
func (oc *OperationContext) LogFields() []interface{} {
	fields := []interface{}{
		"operationID", oc.OperationID,
		"operationType", oc.OperationType,
		"duration", oc.Duration(),
	}

	if oc.InstanceID != "" {
		fields = append(fields, "instanceID", oc.InstanceID)
	}
	if oc.SubnetID != "" {
		fields = append(fields, "subnetID", oc.SubnetID)
	}
	if oc.ConfigID != "" {
		fields = append(fields, "configID", oc.ConfigID)
	}
	if oc.InterfaceID != "" {
		fields = append(fields, "interfaceID", oc.InterfaceID)
	}
	if oc.Generation != "" {
		fields = append(fields, "generation", string(oc.Generation))
	}

	for key, value := range oc.Metadata {
		fields = append(fields, key, value)
	}

	return fields
}

// LogOperationStart logs the start of an operation
func (sl *StructuredLogger) LogOperationStart(ctx context.Context, opCtx *OperationContext, message string) {
	sl.logger.V(1).Info(message, opCtx.LogFields()...)
}

// LogOperationSuccess logs successful completion of an operation
func (sl *StructuredLogger) LogOperationSuccess(ctx context.Context, opCtx *OperationContext, message string) {
	sl.logger.Info(message, opCtx.LogFields()...)

	if sl.metrics != nil {
		switch opCtx.OperationType {
		case OperationAssign:
			sl.metrics.RecordAssignment(string(opCtx.Generation), "success", opCtx.Duration())
		case OperationUnassign:
			sl.metrics.RecordUnassignment(string(opCtx.Generation), "success", opCtx.Duration())
		}
	}
}

// LogOperationError logs an error during an operation
func (sl *StructuredLogger) LogOperationError(ctx context.Context, opCtx *OperationContext, err error, message string) {
	sl.logger.Error(err, message, opCtx.LogFields()...)

	if sl.metrics != nil {
		errorType := categorizeError(err)
		switch opCtx.OperationType {
		case OperationAssign:
			sl.metrics.RecordAssignment(string(opCtx.Generation), "error", opCtx.Duration())
			sl.metrics.RecordAssignmentError(string(opCtx.Generation), errorType)
		case OperationUnassign:
			sl.metrics.RecordUnassignment(string(opCtx.Generation), "error", opCtx.Duration())
			sl.metrics.RecordUnassignmentError(string(opCtx.Generation), errorType)
		}
	}
}

// LogOperationWarning logs a warning during an operation
func (sl *StructuredLogger) LogOperationWarning(ctx context.Context, opCtx *OperationContext, message string) {
	sl.logger.Info(fmt.Sprintf("WARNING: %s", message), opCtx.LogFields()...)
}

// LogAPICall logs a remote API call with timing
func (sl *StructuredLogger) LogAPICall(ctx context.Context, backend, operation string, duration time.Duration, err error) {
	fields := []interface{}{
		"backend", backend,
		"operation", operation,
		"duration", duration,
	}

	if err != nil {
		sl.logger.Error(err, "Remote API call failed", fields...)

		if sl.metrics != nil {
			class := retry.Classify(err)
			if class == retry.ClassThrottled {
				sl.metrics.RecordThrottling()
			}
			sl.metrics.RecordAPIError(backend, operation, class.String())
			sl.metrics.RecordAPICall(backend, operation, "error", duration)
		}
		return
	}

	sl.logger.V(1).Info("Remote API call succeeded", fields...)

	if sl.metrics != nil {
		sl.metrics.RecordAPICall(backend, operation, "success", duration)
	}
}

// LogCircuitBreakerEvent logs circuit breaker state changes
func (sl *StructuredLogger) LogCircuitBreakerEvent(ctx context.Context, backend string, from, to retry.BreakerState) {
	sl.logger.Info("Circuit breaker state changed",
		"backend", backend,
		"oldState", from.String(),
		"newState", to.String())

	if sl.metrics != nil {
		sl.metrics.RecordCircuitBreakerState(backend, int(to))
	}
}

// LogInvalidation logs a cached query marked stale
func (sl *StructuredLogger) LogInvalidation(ctx context.Context, opCtx *OperationContext, kind, key string) {
	sl.logger.V(1).Info("Marked cached query stale", append(opCtx.LogFields(), "kind", kind, "key", key)...)

	if sl.metrics != nil {
		sl.metrics.RecordCacheInvalidation(kind)
	}
}

// generateOperationID generates a unique operation ID
func generateOperationID() string {
	return "op-" + uuid.NewString()
}

// categorizeError categorizes errors for metrics
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	return retry.Classify(err).String()
}
