package fetcher

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"acquirer/internal/domain/entity"
)

// HostLimiter paces requests per host with one token bucket each.
// The zero rate disables limiting. It is safe for concurrent use.
type HostLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// NewHostLimiter allows perSecond requests per host with the given burst.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		hosts: make(map[string]*rate.Limiter),
	}
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.hosts[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.hosts[host] = l
	}
	return l
}

// Wait blocks until a request to host may start.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || h.limit <= 0 {
		return nil
	}
	return waitLimiter(ctx, h.limiter(host))
}

// Hosts returns how many hosts have been seen.
func (h *HostLimiter) Hosts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hosts)
}

// waitLimiter converts the limiter's "would exceed deadline" refusal into a
// RateLimited failure; plain context errors pass through unchanged.
func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if err := l.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return entity.WithKind(entity.ErrorKindRateLimited, fmt.Errorf("rate limit: %w", err))
	}
	return nil
}
