// Package provider implements the text-processing strategies backed by
// hosted model APIs: translation through OpenAI or Claude and speech
// synthesis through OpenAI.
//
// The SDK clients run with their own retries disabled; retries, circuit
// breaking and fallback between providers are handled by the pipeline.
package provider

import (
	"fmt"
	"time"

	pkgconfig "acquirer/internal/pkg/config"
)

// Strategy names.
const (
	NameOpenAITranslate = "openai-translate"
	NameClaudeTranslate = "claude-translate"
	NameOpenAISpeech    = "openai-speech"
)

const (
	minInputChars = 100
	maxInputChars = 100000
)

// Config holds the settings of one provider.
type Config struct {
	// APIKey authenticates against the provider. Empty disables it.
	APIKey string

	// BaseURL overrides the API endpoint; empty means the SDK default.
	BaseURL string

	// Model is the chat/messages model used for translation.
	Model string

	// SpeechModel is the text-to-speech model (OpenAI only).
	SpeechModel string

	// DefaultVoice is used when a request does not name one.
	DefaultVoice string

	// MaxTokens bounds the generated output.
	MaxTokens int

	// MaxInputChars truncates input text, counted in runes.
	MaxInputChars int

	// Timeout bounds a single API call.
	Timeout time.Duration
}

// Enabled reports whether the provider has credentials.
func (c Config) Enabled() bool { return c.APIKey != "" }

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if err := pkgconfig.ValidateIntRange(c.MaxInputChars, minInputChars, maxInputChars); err != nil {
		return fmt.Errorf("invalid max input chars: %w", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// DefaultOpenAIConfig returns the OpenAI defaults without credentials.
func DefaultOpenAIConfig() Config {
	return Config{
		Model:         "gpt-4o-mini",
		SpeechModel:   "tts-1",
		DefaultVoice:  "alloy",
		MaxTokens:     2048,
		MaxInputChars: 10000,
		Timeout:       60 * time.Second,
	}
}

// DefaultClaudeConfig returns the Claude defaults without credentials.
func DefaultClaudeConfig() Config {
	return Config{
		Model:         "claude-sonnet-4-5-20250929",
		MaxTokens:     2048,
		MaxInputChars: 10000,
		Timeout:       60 * time.Second,
	}
}

// LoadOpenAIConfig reads OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL,
// OPENAI_SPEECH_MODEL, OPENAI_VOICE, PROVIDER_MAX_TOKENS,
// PROVIDER_MAX_INPUT_CHARS and PROVIDER_TIMEOUT.
func LoadOpenAIConfig() (Config, []string) {
	cfg := DefaultOpenAIConfig()
	cfg.APIKey = pkgconfig.LoadEnvString("OPENAI_API_KEY", "")
	cfg.BaseURL = pkgconfig.LoadEnvString("OPENAI_BASE_URL", "")
	cfg.Model = pkgconfig.LoadEnvString("OPENAI_MODEL", cfg.Model)
	cfg.SpeechModel = pkgconfig.LoadEnvString("OPENAI_SPEECH_MODEL", cfg.SpeechModel)
	cfg.DefaultVoice = pkgconfig.LoadEnvString("OPENAI_VOICE", cfg.DefaultVoice)
	return loadShared(cfg)
}

// LoadClaudeConfig reads ANTHROPIC_API_KEY, ANTHROPIC_BASE_URL,
// CLAUDE_MODEL and the shared PROVIDER_* settings.
func LoadClaudeConfig() (Config, []string) {
	cfg := DefaultClaudeConfig()
	cfg.APIKey = pkgconfig.LoadEnvString("ANTHROPIC_API_KEY", "")
	cfg.BaseURL = pkgconfig.LoadEnvString("ANTHROPIC_BASE_URL", "")
	cfg.Model = pkgconfig.LoadEnvString("CLAUDE_MODEL", cfg.Model)
	return loadShared(cfg)
}

func loadShared(cfg Config) (Config, []string) {
	var w pkgconfig.Warnings
	cfg.MaxTokens = pkgconfig.Collect(&w, pkgconfig.LoadEnvInt("PROVIDER_MAX_TOKENS", cfg.MaxTokens, func(v int) error {
		return pkgconfig.ValidateIntRange(v, 1, 32000)
	}))
	cfg.MaxInputChars = pkgconfig.Collect(&w, pkgconfig.LoadEnvInt("PROVIDER_MAX_INPUT_CHARS", cfg.MaxInputChars, func(v int) error {
		return pkgconfig.ValidateIntRange(v, minInputChars, maxInputChars)
	}))
	cfg.Timeout = pkgconfig.Collect(&w, pkgconfig.LoadEnvDuration("PROVIDER_TIMEOUT", cfg.Timeout, pkgconfig.ValidatePositiveDuration))
	return cfg, w
}
