package entity

import "time"

// Outcome records how one strategy invocation for a target key went.
// Outcomes are values and are never modified after construction.
type Outcome struct {
	Key       string
	Strategy  string
	Success   bool
	Kind      ErrorKind
	Attempts  int
	Latency   time.Duration
	Timestamp time.Time
	Err       error
}

// NewSuccessOutcome builds a successful outcome.
func NewSuccessOutcome(key, strategy string, attempts int, latency time.Duration) Outcome {
	return Outcome{
		Key:       key,
		Strategy:  strategy,
		Success:   true,
		Attempts:  attempts,
		Latency:   latency,
		Timestamp: time.Now(),
	}
}

// NewFailureOutcome builds a failed outcome of the given kind.
func NewFailureOutcome(key, strategy string, kind ErrorKind, attempts int, latency time.Duration, err error) Outcome {
	if kind == ErrorKindNone {
		kind = ErrorKindUnknown
	}
	return Outcome{
		Key:       key,
		Strategy:  strategy,
		Kind:      kind,
		Attempts:  attempts,
		Latency:   latency,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// NewRejectedOutcome builds the zero-latency outcome of a strategy that was
// skipped before any attempt (open circuit or exhausted pool).
func NewRejectedOutcome(key, strategy string, kind ErrorKind, err error) Outcome {
	return NewFailureOutcome(key, strategy, kind, 0, 0, err)
}

// Result returns "success" or the failure kind, for metric labels.
func (o Outcome) Result() string {
	if o.Success {
		return "success"
	}
	return o.Kind.String()
}
