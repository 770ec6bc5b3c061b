package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"acquirer/internal/domain/entity"
)

// Classification is the verdict of a Classifier for one error.
type Classification struct {
	Retryable bool
	Kind      entity.ErrorKind
}

// Classifier maps an error to a Classification.
type Classifier func(err error) Classification

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Kind maps the status code onto the error taxonomy.
func (e *HTTPError) Kind() entity.ErrorKind {
	switch {
	case e.StatusCode == http.StatusRequestTimeout:
		return entity.ErrorKindTimeout
	case e.StatusCode == http.StatusTooManyRequests:
		return entity.ErrorKindRateLimited
	case e.StatusCode >= 500 && e.StatusCode < 600:
		return entity.ErrorKindServerFault
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return entity.ErrorKindClientError
	default:
		return entity.ErrorKindUnknown
	}
}

// DefaultClassifier treats connection resets, refusals, DNS failures,
// timeouts, 5xx and 429 responses as retryable. Other 4xx responses are fatal
// ClientError and validation failures are fatal InvalidInput. Errors it does
// not recognise are fatal Unknown.
func DefaultClassifier(err error) Classification {
	if err == nil {
		return Classification{Kind: entity.ErrorKindNone}
	}

	if kind, ok := entity.KindOf(err); ok {
		return Classification{Retryable: kind.Retryable(), Kind: kind}
	}

	if errors.Is(err, context.Canceled) {
		return Classification{Kind: entity.ErrorKindCanceled}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Retryable: true, Kind: entity.ErrorKindTimeout}
	}

	if errors.Is(err, entity.ErrInvalidInput) {
		return Classification{Kind: entity.ErrorKindInvalidInput}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		kind := httpErr.Kind()
		return Classification{Retryable: kind.Retryable(), Kind: kind}
	}

	// Network errors (timeout)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Retryable: true, Kind: entity.ErrorKindTimeout}
	}
	if errors.Is(err, syscall.ETIMEDOUT) {
		return Classification{Retryable: true, Kind: entity.ErrorKindTimeout}
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return Classification{Retryable: true, Kind: entity.ErrorKindNetwork}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Classification{Retryable: true, Kind: entity.ErrorKindNetwork}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Classification{Retryable: true, Kind: entity.ErrorKindNetwork}
	}

	// Peer hung up mid-response
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return Classification{Retryable: true, Kind: entity.ErrorKindNetwork}
	}

	return Classification{Kind: entity.ErrorKindUnknown}
}

// IsRetryable determines if an error is worth retrying under DefaultClassifier.
func IsRetryable(err error) bool {
	return DefaultClassifier(err).Retryable
}
