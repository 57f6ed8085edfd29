package forwarder

import "errors"

// Sentinel errors. Terminal errors returned in Result.Err wrap exactly one of
// ErrPermanentDelivery, ErrRetryBudgetExhausted, ErrBackpressure,
// ErrDeliveryAbandoned or ErrForwarderStopped.
var (
	// ErrTransientDelivery marks a failed attempt that may succeed if retried.
	ErrTransientDelivery = errors.New("transient delivery failure")

	// ErrPermanentDelivery marks a store rejection that retrying cannot fix.
	ErrPermanentDelivery = errors.New("store rejected reading")

	// ErrRetryBudgetExhausted is returned after max_retries transient failures.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrBackpressure is returned when the delivery queue is full.
	ErrBackpressure = errors.New("delivery queue full")

	// ErrDeliveryAbandoned is returned when the caller stopped waiting.
	ErrDeliveryAbandoned = errors.New("delivery abandoned by caller")

	// ErrForwarderStopped is returned once Stop has been called.
	ErrForwarderStopped = errors.New("forwarder stopped")
)
