package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"acquirer/internal/domain/entity"
	"acquirer/internal/infra/fetcher"
	"acquirer/internal/resilience/retry"
)

// testConfig allows loopback servers started by httptest.
func testConfig() fetcher.Config {
	cfg := fetcher.DefaultConfig()
	cfg.DenyPrivateIPs = false
	cfg.Timeout = 2 * time.Second
	cfg.RateLimit = 0
	return cfg
}

func TestClientGet_Success(t *testing.T) {
	var gotUA, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	client := fetcher.NewClient(testConfig())
	header := fetcher.HeaderFor(entity.RequestOptions{
		UserAgent: "custom-agent",
		Headers:   map[string]string{"X-Custom": "1"},
	})

	page, err := client.Get(context.Background(), server.URL, header)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.Contains(string(page.Body), "hello") {
		t.Errorf("unexpected body %q", page.Body)
	}
	if page.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", page.StatusCode)
	}
	if !fetcher.IsHTML(page.ContentType) {
		t.Errorf("expected HTML content type, got %q", page.ContentType)
	}
	if gotUA != "custom-agent" {
		t.Errorf("expected request user agent override, got %q", gotUA)
	}
	if gotCustom != "1" {
		t.Errorf("expected custom header to be forwarded, got %q", gotCustom)
	}
	if page.FetchedAt.IsZero() {
		t.Error("expected FetchedAt to be set")
	}
}

func TestClientGet_DefaultUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	if _, err := fetcher.NewClient(testConfig()).Get(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotUA != fetcher.DefaultUserAgent {
		t.Errorf("expected default user agent, got %q", gotUA)
	}
}

func TestClientGet_HTTPErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   entity.ErrorKind
	}{
		{status: http.StatusNotFound, kind: entity.ErrorKindClientError},
		{status: http.StatusForbidden, kind: entity.ErrorKindClientError},
		{status: http.StatusTooManyRequests, kind: entity.ErrorKindRateLimited},
		{status: http.StatusServiceUnavailable, kind: entity.ErrorKindServerFault},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := fetcher.NewClient(testConfig()).Get(context.Background(), server.URL, nil)

			var httpErr *retry.HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("expected *retry.HTTPError, got %v", err)
			}
			if httpErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, httpErr.StatusCode)
			}
			if got := retry.DefaultClassifier(err).Kind; got != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, got)
			}
		})
	}
}

func TestClientGet_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodySize = 1024

	_, err := fetcher.NewClient(cfg).Get(context.Background(), server.URL, nil)
	if !errors.Is(err, fetcher.ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	if c := retry.DefaultClassifier(err); c.Retryable {
		t.Error("oversized body must not be retried")
	}
}

func TestClientGet_TooManyRedirects(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/again", http.StatusFound)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRedirects = 2

	_, err := fetcher.NewClient(cfg).Get(context.Background(), server.URL, nil)
	if !errors.Is(err, fetcher.ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
}

func TestClientGet_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	page, err := fetcher.NewClient(testConfig()).Get(context.Background(), server.URL+"/old", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.HasSuffix(page.URL, "/new") {
		t.Errorf("expected final URL to be /new, got %s", page.URL)
	}
}

func TestClientGet_PrivateIPBlocked(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.DenyPrivateIPs = true

	_, err := fetcher.NewClient(cfg).Get(context.Background(), server.URL, nil)
	if !errors.Is(err, fetcher.ErrPrivateIP) {
		t.Fatalf("expected ErrPrivateIP, got %v", err)
	}
	if !errors.Is(err, entity.ErrInvalidInput) {
		t.Error("expected private IP rejection to be invalid input")
	}
	if hits.Load() != 0 {
		t.Error("server must not be contacted")
	}
}

func TestClientGet_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := fetcher.NewClient(testConfig()).Get(ctx, server.URL, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		deny    bool
		wantErr error
	}{
		{name: "https allowed", url: "https://93.184.216.34/page", deny: true},
		{name: "ftp rejected", url: "ftp://example.com/file", wantErr: entity.ErrInvalidInput},
		{name: "missing host", url: "http:///path", wantErr: entity.ErrInvalidInput},
		{name: "loopback", url: "http://127.0.0.1:8080/", deny: true, wantErr: fetcher.ErrPrivateIP},
		{name: "private range", url: "http://10.1.2.3/", deny: true, wantErr: fetcher.ErrPrivateIP},
		{name: "link local metadata", url: "http://169.254.169.254/latest", deny: true, wantErr: fetcher.ErrPrivateIP},
		{name: "ipv6 loopback", url: "http://[::1]/", deny: true, wantErr: fetcher.ErrPrivateIP},
		{name: "private allowed when disabled", url: "http://192.168.1.1/", deny: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fetcher.ValidateURL(context.Background(), tt.url, tt.deny)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateURL() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateURL() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHostLimiter(t *testing.T) {
	limiter := fetcher.NewHostLimiter(1, 1)

	ctx := context.Background()
	if err := limiter.Wait(ctx, "a.example"); err != nil {
		t.Fatalf("first wait should pass, got %v", err)
	}
	if err := limiter.Wait(ctx, "b.example"); err != nil {
		t.Fatalf("other host should have its own bucket, got %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := limiter.Wait(short, "a.example")
	if err == nil {
		t.Fatal("expected second wait on the same host to be refused")
	}
	if kind, _ := entity.KindOf(err); kind != entity.ErrorKindRateLimited {
		t.Errorf("expected rate_limited kind, got %v", err)
	}
	if limiter.Hosts() != 2 {
		t.Errorf("expected 2 hosts, got %d", limiter.Hosts())
	}
}

func TestHostLimiter_Disabled(t *testing.T) {
	limiter := fetcher.NewHostLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if err := limiter.Wait(context.Background(), "a.example"); err != nil {
			t.Fatalf("disabled limiter must not block, got %v", err)
		}
	}
	var nilLimiter *fetcher.HostLimiter
	if err := nilLimiter.Wait(context.Background(), "a.example"); err != nil {
		t.Fatalf("nil limiter must not block, got %v", err)
	}
}
