package entity

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SelectorSet holds CSS selectors used by HTML extraction strategies.
// Empty fields fall back to the strategy's defaults.
type SelectorSet struct {
	Item    string `json:"item,omitempty" yaml:"item"`
	Title   string `json:"title,omitempty" yaml:"title"`
	URL     string `json:"url,omitempty" yaml:"url"`
	Date    string `json:"date,omitempty" yaml:"date"`
	Content string `json:"content,omitempty" yaml:"content"`
	// DateFormat is a Go time layout for the date selector's text.
	DateFormat string `json:"date_format,omitempty" yaml:"date_format"`
}

// RequestOptions are the per-request knobs handed to every strategy.
type RequestOptions struct {
	// Timeout bounds the whole request across all strategies. Zero means
	// the caller's context deadline alone applies.
	Timeout time.Duration
	// MaxItems truncates the accepted result. Zero means unlimited.
	MaxItems  int
	Headers   map[string]string
	UserAgent string
	Selectors SelectorSet

	// Text processing inputs.
	Text           string
	TargetLanguage string
	Voice          string
}

func (o RequestOptions) clone() RequestOptions {
	o.Headers = maps.Clone(o.Headers)
	return o
}

// AcquisitionRequest describes one acquisition: which target, which
// strategies in which order, and with which options. It is immutable once
// built; accessors hand out copies.
type AcquisitionRequest struct {
	id          string
	key         string
	target      string
	strategies  []string
	options     RequestOptions
	submittedAt time.Time
}

// NewAcquisitionRequest validates its input and builds a request.
// target is a URL for web strategies; it may be empty for text processing
// requests, in which case key must be set and Options.Text must be non-empty.
// When key is empty it is derived from target.
func NewAcquisitionRequest(key, target string, strategies []string, opts RequestOptions) (*AcquisitionRequest, error) {
	if len(strategies) == 0 {
		return nil, &ValidationError{Field: "strategies", Message: "at least one strategy is required"}
	}
	for i, s := range strategies {
		if strings.TrimSpace(s) == "" {
			return nil, &ValidationError{Field: "strategies", Message: fmt.Sprintf("strategy %d is empty", i)}
		}
	}

	if target != "" {
		if err := ValidateURL(target); err != nil {
			return nil, err
		}
		if key == "" {
			derived, err := KeyFromURL(target)
			if err != nil {
				return nil, err
			}
			key = derived
		}
	} else if strings.TrimSpace(opts.Text) == "" {
		return nil, &ValidationError{Field: "target", Message: "target URL or text input is required"}
	}

	key = NormalizeKey(key)
	if key == "" {
		return nil, &ValidationError{Field: "key", Message: "target key is required"}
	}
	if opts.Timeout < 0 {
		return nil, &ValidationError{Field: "timeout", Message: "timeout must not be negative"}
	}
	if opts.MaxItems < 0 {
		return nil, &ValidationError{Field: "max_items", Message: "max items must not be negative"}
	}

	return &AcquisitionRequest{
		id:          uuid.NewString(),
		key:         key,
		target:      target,
		strategies:  slices.Clone(strategies),
		options:     opts.clone(),
		submittedAt: time.Now(),
	}, nil
}

// ID returns the request identifier used for logs and traces.
func (r *AcquisitionRequest) ID() string { return r.id }

// Key returns the normalized target key.
func (r *AcquisitionRequest) Key() string { return r.key }

// Target returns the target URL, or "" for text processing requests.
func (r *AcquisitionRequest) Target() string { return r.target }

// Strategies returns a copy of the ordered strategy list.
func (r *AcquisitionRequest) Strategies() []string { return slices.Clone(r.strategies) }

// Options returns a copy of the request options.
func (r *AcquisitionRequest) Options() RequestOptions { return r.options.clone() }

// SubmittedAt returns when the request was built.
func (r *AcquisitionRequest) SubmittedAt() time.Time { return r.submittedAt }
