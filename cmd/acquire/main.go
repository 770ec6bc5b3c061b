// Command acquire runs a one-shot acquisition and writes the results to
// stdout as JSON lines.
//
// Usage:
//
//	acquire [flags] [url]
//
// With a URL, or with -text, a single request is built from the flags.
// Without either, every target of the pipeline file is acquired. The
// health snapshot is printed to stderr afterwards. The exit status is 1
// when any request failed and 2 on usage or configuration errors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"acquirer/internal/config"
	"acquirer/internal/domain/entity"
	"acquirer/internal/infra/fetcher"
	"acquirer/internal/infra/pipeline"
	"acquirer/internal/infra/provider"
	"acquirer/internal/infra/sink"
	"acquirer/internal/observability/logging"
	"acquirer/internal/usecase/health"
)

type options struct {
	configPath  string
	key         string
	strategies  string
	text        string
	language    string
	voice       string
	maxItems    int
	parallelism int
	timeout     time.Duration
	quiet       bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("acquire", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", os.Getenv("PIPELINE_CONFIG"), "Pipeline YAML file")
	fs.StringVar(&opts.key, "key", "", "Target key (derived from the URL when empty)")
	fs.StringVar(&opts.strategies, "strategies", "", "Comma-separated strategy order")
	fs.StringVar(&opts.text, "text", "", "Input text for translation or speech")
	fs.StringVar(&opts.language, "lang", "", "Target language for translation")
	fs.StringVar(&opts.voice, "voice", "", "Voice for speech synthesis")
	fs.IntVar(&opts.maxItems, "max-items", 0, "Maximum items per result (0 = unlimited)")
	fs.IntVar(&opts.parallelism, "parallelism", 4, "Concurrent requests")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Overall timeout")
	fs.BoolVar(&opts.quiet, "quiet", false, "Do not print the health snapshot")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logging.NewLoggerTo(stderr)
	slog.SetDefault(logger)

	pc, err := config.LoadPipelineConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	fetchConfig, warnings := fetcher.LoadConfigFromEnv()
	openaiConfig, w := provider.LoadOpenAIConfig()
	warnings = append(warnings, w...)
	claudeConfig, w := provider.LoadClaudeConfig()
	warnings = append(warnings, w...)
	for _, warning := range warnings {
		logger.Warn("Configuration fallback applied", slog.String("warning", warning))
	}

	p, err := pipeline.Build(pipeline.Settings{
		Pipeline:    pc,
		Fetch:       fetchConfig,
		OpenAI:      openaiConfig,
		Claude:      claudeConfig,
		Parallelism: opts.parallelism,
	}, pipeline.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", logging.SanitizeError(err))
		return 2
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	}()

	reqs, err := requests(pc, opts, fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(reqs) == 0 {
		fmt.Fprintln(stderr, "Error: nothing to acquire: pass a URL, -text or a pipeline file with targets")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	stats, err := p.RunRequests(ctx, reqs, sink.NewJSONL(stdout))
	if !opts.quiet {
		writeSnapshots(stderr, p.Monitor.SnapshotAll())
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", logging.SanitizeError(err))
		return 1
	}
	for _, f := range stats.Failures {
		fmt.Fprintf(stderr, "failed: %s: %s\n", f.Key, logging.SanitizeError(f.Err))
	}
	if stats.Failed > 0 {
		return 1
	}
	return 0
}

// requests builds the single request described by the flags, or every
// target of the pipeline when neither a URL nor -text was given.
func requests(pc *config.Pipeline, opts options, args []string) ([]*entity.AcquisitionRequest, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("expected at most one URL, got %d arguments", len(args))
	}
	var target string
	if len(args) == 1 {
		target = args[0]
	}
	if target == "" && opts.text == "" {
		return pc.Requests()
	}

	key := opts.key
	if key == "" && target != "" {
		derived, err := entity.KeyFromURL(target)
		if err != nil {
			return nil, err
		}
		key = derived
	}
	tuning := pc.Resolve(key)

	strategies := tuning.Strategies
	if opts.strategies != "" {
		strategies = nil
		for _, s := range strings.Split(opts.strategies, ",") {
			if s = strings.TrimSpace(s); s != "" {
				strategies = append(strategies, s)
			}
		}
	}
	maxItems := opts.maxItems
	if maxItems == 0 {
		maxItems = tuning.MaxItems
	}

	req, err := entity.NewAcquisitionRequest(key, target, strategies, entity.RequestOptions{
		Timeout:        tuning.Timeout,
		MaxItems:       maxItems,
		Text:           opts.text,
		TargetLanguage: opts.language,
		Voice:          opts.voice,
	})
	if err != nil {
		return nil, err
	}
	return []*entity.AcquisitionRequest{req}, nil
}

func writeSnapshots(w io.Writer, snaps map[string]health.Snapshot) {
	list := make([]health.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"health": list})
}
