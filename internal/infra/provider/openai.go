package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/workerpool"
	"acquirer/internal/utils/text"
)

// Option configures a provider strategy.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics MetricsRecorder
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics replaces the Prometheus recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewPrometheusMetrics()
	}
	return o
}

func newOpenAIClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// translationPrompt is shared by both translation providers.
func translationPrompt(language string) string {
	return fmt.Sprintf("Translate the user's text into %s. Reply with the translation only, "+
		"preserving paragraphs and formatting.", language)
}

// OpenAITranslator translates Options.Text into Options.TargetLanguage
// with the chat completions API.
type OpenAITranslator struct {
	client *openai.Client
	cfg    Config
	options
}

// NewOpenAITranslator creates the openai-translate strategy.
func NewOpenAITranslator(cfg Config, opts ...Option) *OpenAITranslator {
	return &OpenAITranslator{client: newOpenAIClient(cfg), cfg: cfg, options: buildOptions(opts)}
}

// Name returns "openai-translate".
func (t *OpenAITranslator) Name() string { return NameOpenAITranslate }

// Attempt performs one translation call.
func (t *OpenAITranslator) Attempt(ctx context.Context, req *entity.AcquisitionRequest, _ workerpool.Worker) (*entity.Result, error) {
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
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     t.cfg.Model,
		MaxTokens: t.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translationPrompt(language)},
			{Role: openai.ChatMessageRoleUser, Content: in},
		},
	})
	duration := time.Since(start)
	t.metrics.RecordCall(NameOpenAITranslate, duration, err)
	if err != nil {
		t.logger.WarnContext(ctx, "translation failed",
			slog.String("provider", NameOpenAITranslate),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return nil, apiError("openai", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, emptyResponse("openai")
	}

	out := resp.Choices[0].Message.Content
	t.metrics.RecordOutputLength(NameOpenAITranslate, text.CountRunes(out))
	t.logger.DebugContext(ctx, "translation completed",
		slog.String("provider", NameOpenAITranslate),
		slog.String("language", language),
		slog.Duration("duration", duration))

	return &entity.Result{Items: []entity.Item{{
		URL:       req.Target(),
		Content:   out,
		MediaType: "text/plain",
	}}}, nil
}

// OpenAISpeech synthesizes Options.Text into MP3 audio.
type OpenAISpeech struct {
	client *openai.Client
	cfg    Config
	options
}

// NewOpenAISpeech creates the openai-speech strategy.
func NewOpenAISpeech(cfg Config, opts ...Option) *OpenAISpeech {
	return &OpenAISpeech{client: newOpenAIClient(cfg), cfg: cfg, options: buildOptions(opts)}
}

// Name returns "openai-speech".
func (s *OpenAISpeech) Name() string { return NameOpenAISpeech }

// Attempt performs one speech synthesis call.
func (s *OpenAISpeech) Attempt(ctx context.Context, req *entity.AcquisitionRequest, _ workerpool.Worker) (*entity.Result, error) {
	in, err := inputText(req, s.cfg.MaxInputChars, s.logger)
	if err != nil {
		return nil, err
	}
	voice := req.Options().Voice
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.SpeechModel),
		Input:          in,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		s.metrics.RecordCall(NameOpenAISpeech, time.Since(start), err)
		return nil, apiError("openai", err)
	}
	defer func() { _ = resp.Close() }()

	audio, err := io.ReadAll(resp)
	s.metrics.RecordCall(NameOpenAISpeech, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, emptyResponse("openai")
	}

	return &entity.Result{Items: []entity.Item{{
		URL:       req.Target(),
		Content:   in,
		MediaType: "audio/mpeg",
		Data:      audio,
	}}}, nil
}
