// Package acquire provides the acquisition use case: it runs the strategies
// of a request in order, each behind the circuit breaker, the worker pool
// and the retry policy, and records every outcome in the health monitor.
package acquire

import "errors"

// Sentinel errors for acquisition use case operations.
var (
	// ErrNilRequest indicates that Acquire was called without a request.
	ErrNilRequest = errors.New("acquisition request is nil")

	// ErrUnknownStrategy indicates that a request named a strategy that was
	// never registered with the Service.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrDuplicateStrategy indicates that two strategies were registered
	// under the same name.
	ErrDuplicateStrategy = errors.New("strategy already registered")
)
