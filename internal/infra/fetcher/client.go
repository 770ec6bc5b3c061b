package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/retry"
)

// Page is a downloaded HTTP response body.
type Page struct {
	// URL is the final URL after redirects.
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Client downloads pages with the safety limits of Config. It shares one
// transport across callers and paces requests per host. It is safe for
// concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *HostLimiter
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHostLimiter shares a per-host limiter between clients and sessions.
func WithHostLimiter(l *HostLimiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client. The configuration should already be validated.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = NewHostLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	c.http = newHTTPClient(cfg, newTransport(), nil)
	return c
}

// Get downloads rawURL. Non-2xx responses are returned as *retry.HTTPError.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Page, error) {
	return get(ctx, c.http, c.cfg, c.limiter, rawURL, header)
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.cfg }

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func newHTTPClient(cfg Config, transport http.RoundTripper, jar http.CookieJar) *http.Client {
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.MaxRedirects {
				return entity.WithKind(entity.ErrorKindUnknown,
					fmt.Errorf("%w: stopped after %d redirects", ErrTooManyRedirects, cfg.MaxRedirects))
			}
			// A public URL may redirect to an internal one.
			return ValidateURL(req.Context(), req.URL.String(), cfg.DenyPrivateIPs)
		},
	}
}

// HeaderFor builds request headers from request options.
func HeaderFor(opts entity.RequestOptions) http.Header {
	h := make(http.Header, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		h.Set(k, v)
	}
	if opts.UserAgent != "" {
		h.Set("User-Agent", opts.UserAgent)
	}
	return h
}

func get(ctx context.Context, client *http.Client, cfg Config, limiter *HostLimiter, rawURL string, header http.Header) (*Page, error) {
	if err := ValidateURL(ctx, rawURL, cfg.DenyPrivateIPs); err != nil {
		return nil, err
	}
	u, _ := url.Parse(rawURL)
	if err := limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", entity.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, unwrapURLError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	// Read one byte past the limit to detect oversized bodies without
	// trusting Content-Length.
	body, err := io.ReadAll(io.LimitReader(resp.Body, cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > cfg.MaxBodySize {
		return nil, entity.WithKind(entity.ErrorKindUnknown,
			fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, cfg.MaxBodySize))
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now(),
	}, nil
}

// unwrapURLError strips the *url.Error added by http.Client so redirect
// policy errors keep their kind and network errors stay classifiable.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if _, ok := entity.KindOf(urlErr.Err); ok || errors.Is(urlErr.Err, entity.ErrInvalidInput) {
			return urlErr.Err
		}
		if urlErr.Timeout() {
			return entity.WithKind(entity.ErrorKindTimeout, fmt.Errorf("fetch %s: %w", urlErr.URL, urlErr.Err))
		}
	}
	return fmt.Errorf("fetch: %w", err)
}

// IsHTML reports whether a content type denotes an HTML document.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
