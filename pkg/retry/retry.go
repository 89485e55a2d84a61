// Package retry classifies remote API failures and re-runs idempotent
// calls with exponential backoff.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Class groups failures by how a caller should react to them
type Class int

const (
	// ClassPermanent failures will fail the same way again
	ClassPermanent Class = iota
	// ClassThrottled failures were rejected by a rate limit
	ClassThrottled
	// ClassTransient failures are server side and usually clear up
	ClassTransient
	// ClassNetwork failures never reached a response
	ClassNetwork
	// ClassNotFound failures name a resource that does not exist
	ClassNotFound
)

var classNames = map[Class]string{
	ClassPermanent: "permanent",
	ClassThrottled: "throttled",
	ClassTransient: "transient",
	ClassNetwork:   "network",
	ClassNotFound:  "not-found",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// Retryable reports whether another attempt may succeed
func (c Class) Retryable() bool {
	return c == ClassThrottled || c == ClassTransient || c == ClassNetwork
}

// StatusCoder is implemented by errors that carry an HTTP status
type StatusCoder interface {
	HTTPStatus() int
}

// ErrExhausted is returned when every attempt ran without the operation
// reporting completion
var ErrExhausted = errors.New("retries exhausted")

// messageRules is consulted in order when an error carries no status
var messageRules = []struct {
	class    Class
	keywords []string
}{
	{ClassThrottled, []string{"throttl", "requestlimitexceeded", "rate exceeded", "too many requests", "slow down"}},
	{ClassNotFound, []string{".notfound", "not found", "does not exist"}},
	{ClassPermanent, []string{"access denied", "unauthorized", "forbidden", "validation", "invalid parameter", "malformed"}},
	{ClassNetwork, []string{"connection refused", "connection reset", "timeout", "broken pipe", "no such host", "eof"}},
	{ClassTransient, []string{"unavailable", "internal error", "try again"}},
}

// Classify assigns err to a Class. Statuses win over messages; anything
// unrecognized is treated as transient. A response body that cannot be
// decoded will not decode on the next attempt either.
func Classify(err error) Class {
	if err == nil || errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		if class, ok := classifyStatus(coder.HTTPStatus()); ok {
			return class
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(msg, keyword) {
				return rule.class
			}
		}
	}
	return ClassTransient
}

func classifyStatus(status int) (Class, bool) {
	switch {
	case status == 0:
		return 0, false
	case status == 429:
		return ClassThrottled, true
	case status == 404:
		return ClassNotFound, true
	case status == 408, status == 409, status >= 500:
		return ClassTransient, true
	case status >= 400:
		return ClassPermanent, true
	}
	return 0, false
}

// Predicate decides whether a failed attempt is worth repeating
type Predicate func(error) bool

// Retryable is the default Predicate
func Retryable(err error) bool {
	return err != nil && Classify(err).Retryable()
}

// Attempt runs once. It returns done=false with a nil error to ask for
// another attempt without failing, which lets Do poll for a condition.
type Attempt func(ctx context.Context) (done bool, err error)

// DefaultBackoff returns the backoff used for remote API calls
func DefaultBackoff() wait.Backoff {
	return wait.Backoff{
		Steps:    5,
		Duration: time.Second,
		Factor:   2.0,
		Jitter:   0.1,
	}
}

// Do runs attempt up to backoff.Steps times. It stops early when the
// context ends or an error fails retryable. The last attempt error is
// returned unwrapped so callers can inspect remote error lists.
func Do(ctx context.Context, logger logr.Logger, operation string, backoff wait.Backoff, retryable Predicate, attempt Attempt) error {
	if retryable == nil {
		retryable = Retryable
	}
	attempts := backoff.Steps
	if attempts < 1 {
		attempts = 1
	}
	log := logger.WithValues("operation", operation)

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := attempt(ctx)
		switch {
		case err == nil && done:
			if n > 1 {
				log.V(1).Info("Operation succeeded after retrying", "attempts", n)
			}
			return nil
		case err != nil && !retryable(err):
			log.V(1).Info("Not retrying operation", "attempts", n, "class", Classify(err).String())
			return err
		case err != nil:
			lastErr = err
		}

		if n == attempts {
			break
		}
		delay := backoff.Step()
		if err != nil {
			log.V(1).Info("Retrying operation", "attempt", n, "delay", delay, "error", err.Error())
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		log.Info("Operation failed after retries", "attempts", attempts, "class", Classify(lastErr).String())
		return lastErr
	}
	return fmt.Errorf("%s: %w after %d attempts", operation, ErrExhausted, attempts)
}
