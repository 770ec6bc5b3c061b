package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/retry"
	"acquirer/internal/utils/text"
)

var (
	// ErrMissingText indicates a request without input text.
	ErrMissingText = errors.New("input text is required")

	// ErrMissingLanguage indicates a translation request without a target language.
	ErrMissingLanguage = errors.New("target language is required")

	// ErrEmptyResponse indicates that the API answered without usable output.
	ErrEmptyResponse = errors.New("provider returned empty response")
)

// apiError maps SDK errors onto *retry.HTTPError so the default classifier
// sees status codes: 429 is rate limiting, 5xx (including 529 overloaded)
// is a server fault, other 4xx are client errors.
func apiError(provider string, err error) error {
	var oaErr *openai.APIError
	if errors.As(err, &oaErr) && oaErr.HTTPStatusCode > 0 {
		return fmt.Errorf("%s api error: %w", provider, &retry.HTTPError{StatusCode: oaErr.HTTPStatusCode, Message: oaErr.Message})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return fmt.Errorf("%s api error: %w", provider, &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: http.StatusText(reqErr.HTTPStatusCode)})
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) && anErr.StatusCode > 0 {
		return fmt.Errorf("%s api error: %w", provider, &retry.HTTPError{StatusCode: anErr.StatusCode, Message: http.StatusText(anErr.StatusCode)})
	}
	// Transport failures keep their net/context errors for classification.
	return fmt.Errorf("%s api error: %w", provider, err)
}

// inputText returns the request text truncated to limit runes.
func inputText(req *entity.AcquisitionRequest, limit int, logger *slog.Logger) (string, error) {
	in := req.Options().Text
	if in == "" {
		return "", fmt.Errorf("%w: %w", entity.ErrInvalidInput, ErrMissingText)
	}
	out, cut := text.TruncateRunes(in, limit)
	if cut {
		logger.Warn("input text truncated",
			slog.String("key", req.Key()),
			slog.Int("original_length", text.CountRunes(in)),
			slog.Int("truncated_length", limit))
	}
	return out, nil
}

func emptyResponse(provider string) error {
	return entity.WithKind(entity.ErrorKindServerFault, fmt.Errorf("%s: %w", provider, ErrEmptyResponse))
}
