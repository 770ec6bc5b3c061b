// Package fetcher provides the HTTP plumbing shared by acquisition
// strategies: SSRF-safe URL validation, size-limited downloads, per-host
// rate limiting and pooled browsing sessions.
package fetcher

import "errors"

// Sentinel errors for fetch operations.
var (
	// ErrPrivateIP indicates that a URL resolves to a private, loopback or
	// link-local address.
	ErrPrivateIP = errors.New("URL resolves to private IP address")

	// ErrTooManyRedirects indicates that a redirect chain exceeded MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge indicates that a response exceeded MaxBodySize.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrSessionClosed indicates that a Session was used after Close.
	ErrSessionClosed = errors.New("session closed")
)
