// Package resilience provides the failure-handling building blocks shared by
// the pipeline's outbound ports: an error-kind taxonomy, a jittered
// exponential backoff policy, and a circuit breaker.
package resilience

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the policy it demands, not by its source.
type Kind int

const (
	// KindTransient failures consume a retry attempt and back off.
	KindTransient Kind = iota
	// KindBusy failures defer work without consuming an attempt.
	KindBusy
	// KindPermanent failures dead-letter the batch immediately.
	KindPermanent
	// KindFatal failures abort the process.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindBusy:
		return "busy"
	case KindPermanent:
		return "permanent"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

// Busy wraps err as a deferral that must not consume an attempt.
func Busy(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindBusy, Err: err}
}

// Permanent wraps err as an unrecoverable domain failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPermanent, Err: err}
}

// Fatal wraps err as a process-level failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindFatal, Err: err}
}

// Classify returns the Kind attached to err. Unclassified errors, including
// context cancellation and timeouts, default to Transient so an unknown
// failure retries instead of dead-lettering work.
func Classify(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransient
}

// IsKind reports whether err classifies as k.
func IsKind(err error, k Kind) bool {
	return err != nil && Classify(err) == k
}
