package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acquirer/internal/resilience/circuitbreaker"
	"acquirer/internal/resilience/retry"
)

const samplePipeline = `
defaults:
  strategies: [render, fetch]
  timeout: 30s
  max_items: 20
  retry:
    max_attempts: 3
    base_delay: 100ms
    max_delay: 2s
  circuit:
    failure_threshold: 2
    open_timeout: 30s
pools:
  render:
    max_workers: 8
    acquire_timeout: 5s
profiles:
  - name: feeds
    match: ["*.blog", "news.*"]
    strategies: [feed, fetch]
    retry:
      max_attempts: 5
    strategy_retry:
      feed:
        base_delay: 50ms
  - name: fragile
    match: ["flaky.example"]
    circuit:
      failure_threshold: 1
targets:
  - url: https://www.Example.com/articles
  - url: https://engineering.blog/
    max_items: 5
    selectors:
      item: ".post"
  - key: docs.internal
    text: "Hello"
    target_language: French
    strategies: [openai-translate, claude-translate]
`

func TestParsePipeline(t *testing.T) {
	p, err := ParsePipeline(strings.NewReader(samplePipeline))
	require.NoError(t, err)

	assert.Equal(t, []string{"render", "fetch"}, p.Defaults.Strategies)
	assert.Equal(t, 30*time.Second, p.Defaults.Timeout)
	assert.Equal(t, 0.1, p.Defaults.Retry.JitterFraction, "unset fields keep built-in defaults")

	pool, ok := p.Pool("render")
	require.True(t, ok)
	assert.Equal(t, int32(8), pool.MaxWorkers)
	_, ok = p.Pool("fetch")
	assert.False(t, ok)

	assert.Len(t, p.Targets, 3)
}

func TestResolve(t *testing.T) {
	p, err := ParsePipeline(strings.NewReader(samplePipeline))
	require.NoError(t, err)

	t.Run("default profile", func(t *testing.T) {
		r := p.Resolve("example.com")
		assert.Equal(t, "default", r.Profile)
		assert.Equal(t, []string{"render", "fetch"}, r.Strategies)
		assert.Equal(t, uint32(2), r.Circuit.FailureThreshold)
	})

	t.Run("glob match merges over defaults", func(t *testing.T) {
		r := p.Resolve("engineering.blog")
		assert.Equal(t, "feeds", r.Profile)
		assert.Equal(t, []string{"feed", "fetch"}, r.Strategies)

		want := retry.Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2, JitterFraction: 0.1}
		if diff := cmp.Diff(want, r.Retry); diff != "" {
			t.Errorf("retry mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, 50*time.Millisecond, r.RetryFor("feed").InitialDelay)
		assert.Equal(t, 5, r.RetryFor("fetch").MaxAttempts)
		assert.Equal(t, 30*time.Second, r.Timeout)
	})

	t.Run("key is normalized before matching", func(t *testing.T) {
		assert.Equal(t, "feeds", p.Resolve("WWW.News.Example:443").Profile)
	})

	t.Run("circuit override", func(t *testing.T) {
		r := p.Resolve("flaky.example")
		assert.Equal(t, circuitbreaker.Config{FailureThreshold: 1, OpenTimeout: 30 * time.Second}, r.Circuit)
	})
}

func TestRequests(t *testing.T) {
	p, err := ParsePipeline(strings.NewReader(samplePipeline))
	require.NoError(t, err)

	reqs, err := p.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	assert.Equal(t, "example.com", reqs[0].Key())
	assert.Equal(t, []string{"render", "fetch"}, reqs[0].Strategies())
	assert.Equal(t, 20, reqs[0].Options().MaxItems)
	assert.Equal(t, 30*time.Second, reqs[0].Options().Timeout)

	assert.Equal(t, []string{"feed", "fetch"}, reqs[1].Strategies())
	assert.Equal(t, 5, reqs[1].Options().MaxItems)
	assert.Equal(t, ".post", reqs[1].Options().Selectors.Item)

	assert.Equal(t, "docs.internal", reqs[2].Key())
	assert.Equal(t, "French", reqs[2].Options().TargetLanguage)
	assert.NotEqual(t, reqs[0].ID(), reqs[1].ID())
}

func TestParsePipeline_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "defaults:\n  retries: 3\n"},
		{name: "bad retry", yaml: "defaults:\n  retry:\n    max_attempts: 0\n    base_delay: 5s\n    max_delay: 1s\n"},
		{name: "bad circuit", yaml: "defaults:\n  circuit:\n    failure_threshold: 0\n    open_timeout: 0s\n"},
		{name: "profile without name", yaml: "profiles:\n  - match: ['*']\n"},
		{name: "profile without match", yaml: "profiles:\n  - name: a\n"},
		{name: "duplicate profile", yaml: "profiles:\n  - name: a\n    match: ['x']\n  - name: a\n    match: ['y']\n"},
		{name: "bad glob", yaml: "profiles:\n  - name: a\n    match: ['[']\n"},
		{name: "bad pool", yaml: "pools:\n  render:\n    max_workers: 0\n"},
		{name: "bad target", yaml: "targets:\n  - url: ftp://example.com\n"},
		{name: "empty target", yaml: "targets:\n  - key: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipeline(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidPipeline)
		})
	}
}

func TestLoadPipelineConfig(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		p, err := LoadPipelineConfig("")
		require.NoError(t, err)
		assert.Equal(t, Default().Defaults.Strategies, p.Defaults.Strategies)
		assert.Empty(t, p.Targets)
	})

	t.Run("reads file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "pipeline.yaml")
		require.NoError(t, os.WriteFile(file, []byte(samplePipeline), 0o600))

		p, err := LoadPipelineConfig(file)
		require.NoError(t, err)
		assert.Len(t, p.Profiles, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPipelineConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "empty.yaml")
		require.NoError(t, os.WriteFile(file, nil, 0o600))

		p, err := LoadPipelineConfig(file)
		require.NoError(t, err)
		assert.Equal(t, Default().Defaults.Timeout, p.Defaults.Timeout)
	})
}
