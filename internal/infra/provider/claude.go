package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/workerpool"
	"acquirer/internal/utils/text"
)

// ClaudeTranslator translates Options.Text with the Messages API.
type ClaudeTranslator struct {
	client anthropic.Client
	cfg    Config
	options
}

// NewClaudeTranslator creates the claude-translate strategy.
func NewClaudeTranslator(cfg Config, opts ...Option) *ClaudeTranslator {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ClaudeTranslator{
		client:  anthropic.NewClient(reqOpts...),
		cfg:     cfg,
		options: buildOptions(opts),
	}
}

// Name returns "claude-translate".
func (t *ClaudeTranslator) Name() string { return NameClaudeTranslate }

// Attempt performs one translation call.
func (t *ClaudeTranslator) Attempt(ctx context.Context, req *entity.AcquisitionRequest, _ workerpool.Worker) (*entity.Result, error) {
	language := req.Options().TargetLanguage
	if language == "" {
		return nil, fmt.Errorf("%w: %w", entity.ErrInvalidInput, ErrMissingLanguage)
	}
	in, err := inputText(req, t.cfg.MaxInputChars, t.logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	start := time.Now()
	message, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(t.cfg.Model),
		MaxTokens: int64(t.cfg.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: translationPrompt(language)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(in)),
		},
	})
	duration := time.Since(start)
	t.metrics.RecordCall(NameClaudeTranslate, duration, err)
	if err != nil {
		t.logger.WarnContext(ctx, "translation failed",
			slog.String("provider", NameClaudeTranslate),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return nil, apiError("claude", err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(tb.Text)
		}
	}
	if out.Len() == 0 {
		return nil, emptyResponse("claude")
	}

	t.metrics.RecordOutputLength(NameClaudeTranslate, text.CountRunes(out.String()))
	t.logger.DebugContext(ctx, "translation completed",
		slog.String("provider", NameClaudeTranslate),
		slog.String("language", language),
		slog.Duration("duration", duration))

	return &entity.Result{Items: []entity.Item{{
		URL:       req.Target(),
		Content:   out.String(),
		MediaType: "text/plain",
	}}}, nil
}
