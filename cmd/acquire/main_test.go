package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acquirer/internal/config"
	"acquirer/internal/domain/entity"
)

const page = `<html><body><article><h2>Release notes</h2><a href="/notes/1">more</a><p>Version one.</p></article></body></html>`

func writePipeline(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func allowLoopback(t *testing.T) {
	t.Helper()
	t.Setenv("FETCH_DENY_PRIVATE_IPS", "false")
	t.Setenv("FETCH_RATE_LIMIT", "0")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
}

func TestRun_SingleURL(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, page)
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"-strategies", "fetch", "-key", "notes.example", srv.URL}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	var result entity.Result
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result))
	assert.Equal(t, "notes.example", result.Key)
	assert.Equal(t, "fetch", result.Strategy)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Release notes", result.Items[0].Title)
	assert.Contains(t, stderr.String(), `"health"`)
}

func TestRun_PipelineTargetsWithFailure(t *testing.T) {
	allowLoopback(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, page)
	}))
	defer srv.Close()

	path := writePipeline(t, `
defaults:
  strategies: [fetch]
  retry: {max_attempts: 1, base_delay: 0s, max_delay: 0s}
targets:
  - key: good.example
    url: `+srv.URL+`/ok
  - key: bad.example
    url: `+srv.URL+`/missing
`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", path, "-quiet"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "good.example")
	assert.Contains(t, stderr.String(), "failed: bad.example")
	assert.NotContains(t, stderr.String(), `"health"`)
}

func TestRun_UsageErrors(t *testing.T) {
	allowLoopback(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown flag", args: []string{"-nope"}},
		{name: "nothing to acquire", args: []string{"-config", ""}},
		{name: "missing config file", args: []string{"-config", "/does/not/exist.yaml"}},
		{name: "too many URLs", args: []string{"https://a.example", "https://b.example"}},
		{name: "text without key", args: []string{"-text", "hello", "-strategies", "openai-translate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 2, run(tt.args, &stdout, &stderr))
			assert.Zero(t, stdout.Len())
		})
	}
}

func TestRequests_FromFlags(t *testing.T) {
	pc := config.Default()

	reqs, err := requests(pc, options{strategies: " fetch , placeholder ,", maxItems: 3}, []string{"https://www.Example.com/blog"})

	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "example.com", reqs[0].Key())
	assert.Equal(t, []string{"fetch", "placeholder"}, reqs[0].Strategies())
	assert.Equal(t, 3, reqs[0].Options().MaxItems)
	assert.Equal(t, pc.Defaults.Timeout, reqs[0].Options().Timeout)
}

func TestRequests_TextRequest(t *testing.T) {
	reqs, err := requests(config.Default(), options{key: "memo", text: "Hello", language: "French", strategies: "claude-translate"}, nil)

	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "memo", reqs[0].Key())
	assert.Equal(t, "Hello", reqs[0].Options().Text)
	assert.Equal(t, "French", reqs[0].Options().TargetLanguage)
	assert.Empty(t, reqs[0].Target())
}
