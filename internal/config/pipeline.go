// Package config loads the pipeline description: tuning defaults,
// per-key-class profiles and the list of targets to acquire.
//
// Example file:
//
//	defaults:
//	  strategies: [render, fetch, placeholder]
//	  timeout: 60s
//	  retry: {max_attempts: 3, base_delay: 1s, max_delay: 10s}
//	  circuit: {failure_threshold: 5, open_timeout: 60s}
//	pools:
//	  render: {max_workers: 4, acquire_timeout: 30s}
//	profiles:
//	  - name: feeds
//	    match: ["*.blog", "news.*"]
//	    strategies: [feed, fetch]
//	    retry: {max_attempts: 5}
//	targets:
//	  - url: https://example.com/blog
//	  - key: docs.internal
//	    text: "Hello"
//	    target_language: French
//	    strategies: [openai-translate, claude-translate]
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v3"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/circuitbreaker"
	"acquirer/internal/resilience/retry"
	"acquirer/internal/resilience/workerpool"
)

// ErrInvalidPipeline wraps every validation failure of a pipeline file.
var ErrInvalidPipeline = errors.New("invalid pipeline config")

// Tuning is the resilience configuration applied to a class of keys.
// Zero fields inherit from the enclosing level.
type Tuning struct {
	Strategies    []string                `yaml:"strategies"`
	Timeout       time.Duration           `yaml:"timeout"`
	MaxItems      int                     `yaml:"max_items"`
	Retry         retry.Config            `yaml:"retry"`
	StrategyRetry map[string]retry.Config `yaml:"strategy_retry"`
	Circuit       circuitbreaker.Config   `yaml:"circuit"`
}

// Profile is a named Tuning applied to keys matching any glob in Match.
type Profile struct {
	Name   string   `yaml:"name"`
	Match  []string `yaml:"match"`
	Tuning `yaml:",inline"`
}

// Target is one configured acquisition.
type Target struct {
	URL            string             `yaml:"url"`
	Key            string             `yaml:"key"`
	Strategies     []string           `yaml:"strategies"`
	MaxItems       int                `yaml:"max_items"`
	Headers        map[string]string  `yaml:"headers"`
	UserAgent      string             `yaml:"user_agent"`
	Selectors      entity.SelectorSet `yaml:"selectors"`
	Text           string             `yaml:"text"`
	TargetLanguage string             `yaml:"target_language"`
	Voice          string             `yaml:"voice"`
}

// Pipeline is the parsed pipeline file.
type Pipeline struct {
	Defaults Tuning                       `yaml:"defaults"`
	Pools    map[string]workerpool.Config `yaml:"pools"`
	Profiles []Profile                    `yaml:"profiles"`
	Targets  []Target                     `yaml:"targets"`
}

// Resolved is the effective tuning for one key.
type Resolved struct {
	// Profile is the name of the matching profile, or "default".
	Profile string
	Tuning
}

// RetryFor returns the retry configuration for a strategy.
func (r Resolved) RetryFor(strategy string) retry.Config {
	if c, ok := r.StrategyRetry[strategy]; ok {
		return c
	}
	return r.Retry
}

// Default returns a pipeline with built-in defaults and no targets.
func Default() *Pipeline {
	return &Pipeline{
		Defaults: Tuning{
			Strategies: []string{"render", "fetch", "placeholder"},
			Timeout:    60 * time.Second,
			Retry:      retry.WebScraperConfig(),
			StrategyRetry: map[string]retry.Config{
				"feed":             retry.FeedFetchConfig(),
				"openai-translate": retry.AIAPIConfig(),
				"claude-translate": retry.AIAPIConfig(),
				"openai-speech":    retry.AIAPIConfig(),
			},
			Circuit: circuitbreaker.DefaultConfig(),
		},
		Pools: map[string]workerpool.Config{
			"render": workerpool.DefaultConfig(),
		},
	}
}

// LoadPipelineConfig reads and validates a pipeline file. An empty path
// returns Default().
func LoadPipelineConfig(filePath string) (*Pipeline, error) {
	if filePath == "" {
		return Default(), nil
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open pipeline config: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParsePipeline(f)
}

// ParsePipeline decodes YAML on top of Default() and validates the result.
// Unknown fields are rejected.
func ParsePipeline(r io.Reader) (*Pipeline, error) {
	p := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidPipeline, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks every section. Profiles are validated after merging with
// the defaults, since partial sections are legal.
func (p *Pipeline) Validate() error {
	if len(p.Defaults.Strategies) == 0 {
		return fmt.Errorf("%w: defaults.strategies must not be empty", ErrInvalidPipeline)
	}
	if err := validateTuning("defaults", p.Defaults); err != nil {
		return err
	}
	for name, pc := range p.Pools {
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("%w: pools.%s: %v", ErrInvalidPipeline, name, err)
		}
	}

	seen := make(map[string]bool, len(p.Profiles))
	for i, prof := range p.Profiles {
		if prof.Name == "" {
			return fmt.Errorf("%w: profiles[%d]: name is required", ErrInvalidPipeline, i)
		}
		if seen[prof.Name] {
			return fmt.Errorf("%w: profiles[%d]: duplicate name %q", ErrInvalidPipeline, i, prof.Name)
		}
		seen[prof.Name] = true
		if len(prof.Match) == 0 {
			return fmt.Errorf("%w: profile %q: match is required", ErrInvalidPipeline, prof.Name)
		}
		for _, pattern := range prof.Match {
			if _, err := path.Match(pattern, ""); err != nil {
				return fmt.Errorf("%w: profile %q: bad pattern %q: %v", ErrInvalidPipeline, prof.Name, pattern, err)
			}
		}
		if err := validateTuning("profile "+prof.Name, merge(p.Defaults, prof.Tuning)); err != nil {
			return err
		}
	}

	for i := range p.Targets {
		if _, err := p.Request(i); err != nil {
			return fmt.Errorf("%w: targets[%d]: %v", ErrInvalidPipeline, i, err)
		}
	}
	return nil
}

func validateTuning(where string, t Tuning) error {
	if err := t.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %s.retry: %v", ErrInvalidPipeline, where, err)
	}
	for name, rc := range t.StrategyRetry {
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("%w: %s.strategy_retry.%s: %v", ErrInvalidPipeline, where, name, err)
		}
	}
	if err := t.Circuit.Validate(); err != nil {
		return fmt.Errorf("%w: %s.circuit: %v", ErrInvalidPipeline, where, err)
	}
	if t.Timeout < 0 || t.MaxItems < 0 {
		return fmt.Errorf("%w: %s: timeout and max_items must not be negative", ErrInvalidPipeline, where)
	}
	return nil
}

// Resolve returns the tuning for key: the first profile with a matching
// glob merged over the defaults, or the defaults alone.
func (p *Pipeline) Resolve(key string) Resolved {
	key = entity.NormalizeKey(key)
	for _, prof := range p.Profiles {
		for _, pattern := range prof.Match {
			if ok, _ := path.Match(pattern, key); ok {
				return Resolved{Profile: prof.Name, Tuning: merge(p.Defaults, prof.Tuning)}
			}
		}
	}
	return Resolved{Profile: "default", Tuning: merge(p.Defaults, Tuning{})}
}

// Pool returns the pool configuration for a strategy and whether the
// strategy runs on a pool at all.
func (p *Pipeline) Pool(strategy string) (workerpool.Config, bool) {
	c, ok := p.Pools[strategy]
	return c, ok
}

// Request builds the acquisition request for target i.
func (p *Pipeline) Request(i int) (*entity.AcquisitionRequest, error) {
	t := p.Targets[i]
	key := t.Key
	if key == "" && t.URL != "" {
		derived, err := entity.KeyFromURL(t.URL)
		if err != nil {
			return nil, err
		}
		key = derived
	}
	tuning := p.Resolve(key)

	strategies := t.Strategies
	if len(strategies) == 0 {
		strategies = tuning.Strategies
	}
	maxItems := t.MaxItems
	if maxItems == 0 {
		maxItems = tuning.MaxItems
	}
	return entity.NewAcquisitionRequest(key, t.URL, strategies, entity.RequestOptions{
		Timeout:        tuning.Timeout,
		MaxItems:       maxItems,
		Headers:        t.Headers,
		UserAgent:      t.UserAgent,
		Selectors:      t.Selectors,
		Text:           t.Text,
		TargetLanguage: t.TargetLanguage,
		Voice:          t.Voice,
	})
}

// Requests builds a request for every target.
func (p *Pipeline) Requests() ([]*entity.AcquisitionRequest, error) {
	reqs := make([]*entity.AcquisitionRequest, 0, len(p.Targets))
	for i := range p.Targets {
		req, err := p.Request(i)
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// merge overlays the non-zero fields of over on base.
func merge(base, over Tuning) Tuning {
	out := base
	if len(over.Strategies) > 0 {
		out.Strategies = over.Strategies
	}
	if over.Timeout > 0 {
		out.Timeout = over.Timeout
	}
	if over.MaxItems > 0 {
		out.MaxItems = over.MaxItems
	}
	out.Retry = mergeRetry(base.Retry, over.Retry)
	out.Circuit = mergeCircuit(base.Circuit, over.Circuit)

	out.StrategyRetry = make(map[string]retry.Config, len(base.StrategyRetry)+len(over.StrategyRetry))
	for name, c := range base.StrategyRetry {
		out.StrategyRetry[name] = c
	}
	for name, c := range over.StrategyRetry {
		parent, ok := base.StrategyRetry[name]
		if !ok {
			parent = out.Retry
		}
		out.StrategyRetry[name] = mergeRetry(parent, c)
	}
	return out
}

func mergeRetry(base, over retry.Config) retry.Config {
	if over.MaxAttempts > 0 {
		base.MaxAttempts = over.MaxAttempts
	}
	if over.InitialDelay > 0 {
		base.InitialDelay = over.InitialDelay
	}
	if over.MaxDelay > 0 {
		base.MaxDelay = over.MaxDelay
	}
	if over.Multiplier > 0 {
		base.Multiplier = over.Multiplier
	}
	if over.JitterFraction > 0 {
		base.JitterFraction = over.JitterFraction
	}
	return base
}

func mergeCircuit(base, over circuitbreaker.Config) circuitbreaker.Config {
	if over.FailureThreshold > 0 {
		base.FailureThreshold = over.FailureThreshold
	}
	if over.OpenTimeout > 0 {
		base.OpenTimeout = over.OpenTimeout
	}
	return base
}
