package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"acquirer/internal/domain/entity"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   10 * time.Millisecond,
		MaxDelay:       100 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func TestExecute_Success(t *testing.T) {
	p := New(fastConfig(), WithLogger(quietLogger()))

	calls := 0
	attempts, err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, nil)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("expected 1 attempt, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestExecute_SuccessAfterRetry(t *testing.T) {
	p := New(fastConfig(), WithLogger(quietLogger()))

	calls := 0
	attempts, err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPError{StatusCode: 500, Message: "Server Error"}
		}
		return nil
	}, nil)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecute_MaxAttemptsExceeded(t *testing.T) {
	p := New(fastConfig(), WithLogger(quietLogger()))

	testErr := &HTTPError{StatusCode: 503, Message: "Service Unavailable"}
	calls := 0
	attempts, err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return testErr
	}, nil)

	if calls != 3 || attempts != 3 {
		t.Errorf("expected 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}

	var retryErr *Error
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if retryErr.Attempts != 3 {
		t.Errorf("expected Attempts=3, got %d", retryErr.Attempts)
	}
	if retryErr.Kind != entity.ErrorKindServerFault {
		t.Errorf("expected kind server_fault, got %s", retryErr.Kind)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("expected error to wrap last error, got %v", err)
	}
}

func TestExecute_NonRetryableError(t *testing.T) {
	p := New(fastConfig(), WithLogger(quietLogger()))

	calls := 0
	_, err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return &HTTPError{StatusCode: 404, Message: "Not Found"}
	}, nil)

	if calls != 1 {
		t.Errorf("expected 1 attempt for non-retryable error, got %d", calls)
	}
	if kind, _ := entity.KindOf(err); kind != entity.ErrorKindClientError {
		t.Errorf("expected kind client_error, got %s", kind)
	}
}

func TestExecute_MaxAttemptsOne(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	p := New(cfg, WithLogger(quietLogger()))

	calls := 0
	_, err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return &HTTPError{StatusCode: 500}
	}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected no retries with MaxAttempts=1, got %d calls", calls)
	}
}

func TestExecute_CustomClassifier(t *testing.T) {
	p := New(fastConfig(), WithLogger(quietLogger()))
	sentinel := errors.New("flaky")

	calls := 0
	_, err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	}, func(err error) Classification {
		return Classification{Retryable: true, Kind: entity.ErrorKindNetwork}
	})

	if calls != 3 {
		t.Errorf("expected classifier to allow 3 attempts, got %d", calls)
	}
	if kind, _ := entity.KindOf(err); kind != entity.ErrorKindNetwork {
		t.Errorf("expected kind network, got %s", kind)
	}
}

// Permanently failing retryable operation: 3 attempts, waits of 100ms and
// 200ms, never more than twice the max delay in total.
func TestExecute_BackoffTiming(t *testing.T) {
	p := New(Config{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       1000 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}, WithLogger(quietLogger()))

	calls := 0
	start := time.Now()
	_, err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return &HTTPError{StatusCode: 502}
	}, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	if elapsed < 300*time.Millisecond {
		t.Errorf("expected at least 300ms of backoff, got %v", elapsed)
	}
	if elapsed > 2*time.Second+200*time.Millisecond {
		t.Errorf("expected backoff bounded by 2x max delay, got %v", elapsed)
	}
}

func TestExecute_ContextCanceled(t *testing.T) {
	p := New(Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := p.Execute(ctx, func(context.Context) error {
		calls++
		return &HTTPError{StatusCode: 500}
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if kind, _ := entity.KindOf(err); kind != entity.ErrorKindCanceled {
		t.Errorf("expected kind canceled, got %s", kind)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", calls)
	}
}

func TestExecute_DeadlineShorterThanBackoff(t *testing.T) {
	p := New(Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	attempts, err := p.Execute(ctx, func(context.Context) error {
		calls++
		return &HTTPError{StatusCode: 500}
	}, nil)

	if !errors.Is(err, ErrDeadlineTooClose) {
		t.Errorf("expected ErrDeadlineTooClose, got %v", err)
	}
	if kind, _ := entity.KindOf(err); kind != entity.ErrorKindTimeout {
		t.Errorf("expected kind timeout, got %s", kind)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("expected a single attempt, got calls=%d attempts=%d", calls, attempts)
	}
	if time.Since(start) > 90*time.Millisecond {
		t.Errorf("expected Execute to give up without waiting, took %v", time.Since(start))
	}
}

func TestExecute_DeadlineExpiredDuringAttempt(t *testing.T) {
	p := New(fastConfig(), WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if kind, _ := entity.KindOf(err); kind != entity.ErrorKindTimeout {
		t.Errorf("expected kind timeout, got %s", kind)
	}
}

func TestExecute_AlreadyExpiredContext(t *testing.T) {
	p := New(fastConfig(), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := p.Execute(ctx, func(context.Context) error {
		calls++
		return nil
	}, nil)

	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if calls != 0 || attempts != 0 {
		t.Errorf("expected no attempts, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{
		MaxAttempts:  10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{64, time.Second},
		{math.MaxInt32, time.Second},
	}

	for _, tt := range tests {
		if got := cfg.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_DefaultMultiplier(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second}
	if got := cfg.Backoff(3); got != 40*time.Millisecond {
		t.Errorf("expected 40ms with default multiplier, got %v", got)
	}
}

func TestDelay_JitterBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.JitterFraction = 0.5

	low := New(cfg, WithRandom(func() float64 { return 0 }))
	high := New(cfg, WithRandom(func() float64 { return 0.999 }))

	base := cfg.Backoff(2)
	if got := low.delay(2); got != base {
		t.Errorf("expected no jitter with rand=0, got %v", got)
	}
	got := high.delay(2)
	if got < base || got >= base+base/2 {
		t.Errorf("expected jittered delay within [%v, %v), got %v", base, base+base/2, got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "zero attempts", cfg: Config{MaxAttempts: 0, MaxDelay: time.Second}, wantErr: true},
		{name: "max below base", cfg: Config{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond}, wantErr: true},
		{name: "multiplier below one", cfg: Config{MaxAttempts: 1, MaxDelay: time.Second, Multiplier: 0.5}, wantErr: true},
		{name: "jitter above one", cfg: Config{MaxAttempts: 1, MaxDelay: time.Second, JitterFraction: 1.5}, wantErr: true},
		{name: "negative base", cfg: Config{MaxAttempts: 1, InitialDelay: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_InvalidConfigFallsBack(t *testing.T) {
	p := New(Config{}, WithLogger(quietLogger()))
	if p.Config() != DefaultConfig() {
		t.Errorf("expected DefaultConfig fallback, got %+v", p.Config())
	}
}

func TestProfiles(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default":     DefaultConfig(),
		"feed":        FeedFetchConfig(),
		"ai":          AIAPIConfig(),
		"web_scraper": WebScraperConfig(),
	} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s profile invalid: %v", name, err)
		}
	}
	if FeedFetchConfig().MaxAttempts != 5 {
		t.Errorf("expected feed profile to retry 5 times, got %d", FeedFetchConfig().MaxAttempts)
	}
}
