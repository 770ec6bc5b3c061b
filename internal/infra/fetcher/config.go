package fetcher

import (
	"fmt"
	"time"

	pkgconfig "acquirer/internal/pkg/config"
)

// Config controls how pages are downloaded.
//
// Security settings:
//   - DenyPrivateIPs: Prevents SSRF attacks by blocking private IP addresses
//   - MaxBodySize: Prevents memory exhaustion from oversized responses
//   - MaxRedirects: Prevents infinite redirect loops
//   - Timeout: Prevents resource starvation from slow servers
//
// Politeness settings:
//   - RateLimit / RateBurst: requests per second allowed per host
//   - UserAgent: identifies the pipeline to site operators
type Config struct {
	// Timeout is the maximum duration for a single HTTP request.
	// Default: 15s
	Timeout time.Duration

	// MaxBodySize is the maximum HTTP response body size in bytes.
	// Enforced while reading, not from Content-Length.
	// Default: 10485760 (10MB)
	MaxBodySize int64

	// MaxRedirects is the maximum number of HTTP redirects to follow.
	// Each redirect target is validated like the original URL.
	// Default: 5
	MaxRedirects int

	// DenyPrivateIPs blocks URLs resolving to private/loopback/link-local IPs.
	// Should always be true in production.
	// Default: true
	DenyPrivateIPs bool

	// UserAgent is sent unless a request overrides it.
	UserAgent string

	// RateLimit is the sustained request rate per host (requests/second).
	// Zero disables rate limiting.
	// Default: 2
	RateLimit float64

	// RateBurst is the number of requests allowed in a burst per host.
	// Default: 4
	RateBurst int
}

// DefaultUserAgent identifies the pipeline's HTTP clients.
const DefaultUserAgent = "AcquirerBot/1.0 (+https://github.com/acquirer)"

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        15 * time.Second,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		MaxRedirects:   5,
		DenyPrivateIPs: true,
		UserAgent:      DefaultUserAgent,
		RateLimit:      2,
		RateBurst:      4,
	}
}

// Validate checks if the configuration values are valid and safe.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}

	minBodySize := int64(1024)              // 1KB
	maxBodySize := int64(100 * 1024 * 1024) // 100MB
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when rate limiting, got %d", c.RateBurst)
	}

	return nil
}

// LoadConfigFromEnv loads configuration from environment variables.
// Invalid values fall back to defaults; the returned warnings say which.
//
// Environment variables:
//   - FETCH_TIMEOUT: duration string, e.g., "15s" (default: 15s)
//   - FETCH_MAX_BODY_SIZE: integer in bytes (default: 10485760)
//   - FETCH_MAX_REDIRECTS: integer 0-10 (default: 5)
//   - FETCH_DENY_PRIVATE_IPS: "true" or "false" (default: true)
//   - FETCH_USER_AGENT: string (default: DefaultUserAgent)
//   - FETCH_RATE_LIMIT: requests per second per host, 0 disables (default: 2)
//   - FETCH_RATE_BURST: integer (default: 4)
func LoadConfigFromEnv() (Config, []string) {
	def := DefaultConfig()
	var w pkgconfig.Warnings

	cfg := Config{
		Timeout: pkgconfig.Collect(&w, pkgconfig.LoadEnvDuration("FETCH_TIMEOUT", def.Timeout, pkgconfig.ValidatePositiveDuration)),
		MaxBodySize: pkgconfig.Collect(&w, pkgconfig.LoadEnvInt64("FETCH_MAX_BODY_SIZE", def.MaxBodySize, func(v int64) error {
			if v < 1024 || v > 100*1024*1024 {
				return fmt.Errorf("must be between 1KB and 100MB")
			}
			return nil
		})),
		MaxRedirects: pkgconfig.Collect(&w, pkgconfig.LoadEnvInt("FETCH_MAX_REDIRECTS", def.MaxRedirects, func(v int) error {
			return pkgconfig.ValidateIntRange(v, 0, 10)
		})),
		DenyPrivateIPs: pkgconfig.Collect(&w, pkgconfig.LoadEnvBool("FETCH_DENY_PRIVATE_IPS", def.DenyPrivateIPs)),
		UserAgent:      pkgconfig.LoadEnvString("FETCH_USER_AGENT", def.UserAgent),
		RateLimit: pkgconfig.Collect(&w, pkgconfig.LoadEnvFloat("FETCH_RATE_LIMIT", def.RateLimit, func(v float64) error {
			if v < 0 {
				return fmt.Errorf("must not be negative")
			}
			return nil
		})),
		RateBurst: pkgconfig.Collect(&w, pkgconfig.LoadEnvInt("FETCH_RATE_BURST", def.RateBurst, func(v int) error {
			return pkgconfig.ValidateIntRange(v, 1, 100)
		})),
	}
	return cfg, w
}
