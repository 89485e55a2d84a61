package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// BreakerState is the position of a Breaker. The numeric values are
// exported as a gauge.
type BreakerState int

const (
	// BreakerClosed lets every call through
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until OpenTimeout has passed
	BreakerOpen
	// BreakerHalfOpen lets a few probe calls through
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned for calls rejected by an open breaker
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes a Breaker
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker
	FailureThreshold int
	// SuccessThreshold probe successes close it again
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
	// HalfOpenProbes is how many probes may be in flight at once
	HalfOpenProbes int
	// CountsAsFailure filters which errors count. Defaults to Retryable,
	// so requests the server rejected do not open the breaker.
	CountsAsFailure func(error) bool
	// OnStateChange runs after each transition, with the breaker locked
	OnStateChange func(from, to BreakerState)
}

// DefaultBreakerConfig returns the breaker settings used for remote APIs
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenTimeout:      30 * time.Second,
		HalfOpenProbes:   1,
		CountsAsFailure:  Retryable,
	}
}

// Breaker stops calling a backend that keeps failing
type Breaker struct {
	cfg BreakerConfig
	log logr.Logger
	now func() time.Time

	mutex     sync.Mutex
	state     BreakerState
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

// NewBreaker creates a closed Breaker. A nil cfg uses DefaultBreakerConfig.
func NewBreaker(cfg *BreakerConfig, logger logr.Logger) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	b := &Breaker{
		cfg: *cfg,
		log: logger.WithName("circuit-breaker"),
		now: time.Now,
	}
	if b.cfg.CountsAsFailure == nil {
		b.cfg.CountsAsFailure = Retryable
	}
	if b.cfg.HalfOpenProbes < 1 {
		b.cfg.HalfOpenProbes = 1
	}
	return b
}

// Do runs fn unless the breaker is open and records its outcome
func (b *Breaker) Do(operation string, fn func() error) error {
	if err := b.admit(); err != nil {
		b.log.V(1).Info("Rejecting call", "operation", operation)
		return fmt.Errorf("%s: %w", operation, err)
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return ErrBreakerOpen
		}
		b.moveTo(BreakerHalfOpen)
	}
	if b.state == BreakerHalfOpen {
		if b.probes >= b.cfg.HalfOpenProbes {
			return ErrBreakerOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	failed := err != nil && b.cfg.CountsAsFailure(err)
	halfOpen := b.state == BreakerHalfOpen
	if halfOpen && b.probes > 0 {
		b.probes--
	}

	switch {
	case failed && halfOpen:
		b.trip()
	case failed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case halfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.moveTo(BreakerClosed)
		}
	default:
		b.failures = 0
	}
}

func (b *Breaker) trip() {
	b.log.Info("Opening circuit", "failures", b.failures, "threshold", b.cfg.FailureThreshold)
	b.openedAt = b.now()
	b.moveTo(BreakerOpen)
}

// moveTo requires the mutex
func (b *Breaker) moveTo(to BreakerState) {
	from := b.state
	b.failures, b.successes, b.probes = 0, 0, 0
	if from == to {
		return
	}
	b.state = to
	b.log.Info("Circuit state changed", "from", from.String(), "to", to.String())
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// State returns the current position of the breaker
func (b *Breaker) State() BreakerState {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// Reset closes the breaker and forgets past failures
func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.moveTo(BreakerClosed)
}
