// Package circuitbreaker provides per-key circuit breakers for acquisition targets.
// It uses the github.com/sony/gobreaker library to prevent cascading failures.
package circuitbreaker

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds the configuration for a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenTimeout is how long to wait in open state before probing again
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
	}
}

// AIAPIConfig returns configuration optimized for translation and speech APIs.
func AIAPIConfig() Config {
	return Config{
		FailureThreshold: 3,
		OpenTimeout:      60 * time.Second,
	}
}

// FeedFetchConfig returns configuration optimized for syndication feeds.
func FeedFetchConfig() Config {
	return Config{
		FailureThreshold: 10,
		OpenTimeout:      120 * time.Second,
	}
}

// WebScraperConfig returns configuration optimized for web scraping.
// More conservative than feed fetching due to site structure changes.
func WebScraperConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      time.Hour,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("open timeout must be positive, got %v", c.OpenTimeout)
	}
	return nil
}

// State is the circuit state of one key.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown state: %d", int(s))
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Key identifies one circuit: a target key paired with the strategy used
// against it, so a failing strategy does not block its fallbacks.
type Key struct {
	Target   string
	Strategy string
}

// String returns "target/strategy".
func (k Key) String() string {
	return k.Target + "/" + k.Strategy
}
