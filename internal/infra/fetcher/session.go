package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/retry"
	"acquirer/internal/resilience/workerpool"
)

// Session is a pooled browsing context: its own connections, cookie jar and
// request pacing. A Session is used by one caller at a time; the pool
// guarantees exclusivity.
//
// A transport failure marks the session unhealthy so the pool replaces it
// instead of reusing connections in an unknown state.
type Session struct {
	id        string
	cfg       Config
	transport *http.Transport
	client    *http.Client
	pace      *rate.Limiter
	hosts     *HostLimiter
	logger    *slog.Logger

	requests  atomic.Int64
	unhealthy atomic.Bool
	closed    atomic.Bool
}

// NewSession creates a Session. hosts may be nil.
func NewSession(cfg Config, hosts *HostLimiter, logger *slog.Logger) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := newTransport()
	pace := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		pace = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		transport: transport,
		client:    newHTTPClient(cfg, transport, jar),
		pace:      pace,
		hosts:     hosts,
		logger:    logger,
	}
	return s, nil
}

// SessionFactory returns a pool factory producing Sessions that share the
// given host limiter.
func SessionFactory(cfg Config, hosts *HostLimiter, logger *slog.Logger) workerpool.Factory {
	return func(context.Context) (workerpool.Worker, error) {
		s, err := NewSession(cfg, hosts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Requests returns how many requests the session has issued.
func (s *Session) Requests() int64 { return s.requests.Load() }

// Get downloads rawURL using the session's cookies and connections.
func (s *Session) Get(ctx context.Context, rawURL string, header http.Header) (*Page, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: %w", entity.ErrWorkerCorrupted, ErrSessionClosed)
	}
	if err := waitLimiter(ctx, s.pace); err != nil {
		return nil, err
	}
	s.requests.Add(1)

	page, err := get(ctx, s.client, s.cfg, s.hosts, rawURL, header)
	if err != nil && isTransportFailure(ctx, err) {
		if s.unhealthy.CompareAndSwap(false, true) {
			s.logger.Debug("session marked unhealthy",
				slog.String("session_id", s.id),
				slog.Any("error", err))
		}
	}
	return page, err
}

// Healthy reports whether the session may be returned to the pool.
func (s *Session) Healthy() bool {
	return !s.unhealthy.Load() && !s.closed.Load()
}

// Close releases the session's idle connections. It is idempotent.
func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.transport.CloseIdleConnections()
	}
	return nil
}

// isTransportFailure reports failures below HTTP: a response with any
// status code, a rejected URL or the caller giving up leave the
// connection state intact.
func isTransportFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		return false
	}
	if errors.Is(err, entity.ErrInvalidInput) ||
		errors.Is(err, ErrBodyTooLarge) ||
		errors.Is(err, ErrTooManyRedirects) {
		return false
	}
	if kind, ok := entity.KindOf(err); ok && kind == entity.ErrorKindRateLimited {
		return false
	}
	return true
}
