package entity

import "errors"

// ErrorKind classifies a failed attempt. Kinds drive retry decisions,
// circuit breaker accounting and fallback behaviour.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindNetwork           ErrorKind = "network"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindServerFault       ErrorKind = "server_fault"
	ErrorKindCircuitOpen       ErrorKind = "circuit_open"
	ErrorKindInvalidInput      ErrorKind = "invalid_input"
	// ErrorKindClientError is a 4xx refusal by the endpoint. It is fatal for
	// the strategy that got it but leaves the request itself intact.
	ErrorKindClientError       ErrorKind = "client_error"
	ErrorKindResourceExhausted ErrorKind = "resource_exhausted"
	ErrorKindCanceled          ErrorKind = "canceled"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// Retryable reports whether failures of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindNetwork, ErrorKindTimeout, ErrorKindRateLimited, ErrorKindServerFault:
		return true
	default:
		return false
	}
}

// CountsAsFailure reports whether a failure of this kind should be charged to
// the circuit breaker. Rejections (circuit open, pool exhausted) and caller
// cancellations are not failures of the target.
func (k ErrorKind) CountsAsFailure() bool {
	switch k {
	case ErrorKindCircuitOpen, ErrorKindResourceExhausted, ErrorKindCanceled, ErrorKindNone:
		return false
	default:
		return true
	}
}

// Rejection reports whether the kind describes an attempt that never ran.
func (k ErrorKind) Rejection() bool {
	return k == ErrorKindCircuitOpen || k == ErrorKindResourceExhausted
}

// String returns the kind label, "none" for the zero value.
func (k ErrorKind) String() string {
	if k == ErrorKindNone {
		return "none"
	}
	return string(k)
}

// KindedError attaches an ErrorKind to an error.
type KindedError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindedError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *KindedError) Unwrap() error { return e.Err }

// ErrorKind returns the attached kind.
func (e *KindedError) ErrorKind() ErrorKind { return e.Kind }

// WithKind wraps err so that KindOf reports kind. A nil err stays nil.
func WithKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindedError{Kind: kind, Err: err}
}

// KindOf returns the outermost kind attached to err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var kinded interface{ ErrorKind() ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.ErrorKind(), true
	}
	return ErrorKindNone, false
}
