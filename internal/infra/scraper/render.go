package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"acquirer/internal/domain/entity"
	"acquirer/internal/infra/fetcher"
	"acquirer/internal/resilience/workerpool"
)

// RenderStrategy extracts the readable article of a page. It runs on a
// pooled *fetcher.Session so cookies and connections persist across
// requests handled by the same worker.
type RenderStrategy struct {
	logger *slog.Logger
}

// NewRenderStrategy creates the render strategy.
func NewRenderStrategy(logger *slog.Logger) *RenderStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderStrategy{logger: logger}
}

// Name returns "render".
func (s *RenderStrategy) Name() string { return NameRender }

// Attempt downloads the target with the leased session and returns the
// article as one item. Pages without readable text yield an empty result.
func (s *RenderStrategy) Attempt(ctx context.Context, req *entity.AcquisitionRequest, worker workerpool.Worker) (*entity.Result, error) {
	session, ok := worker.(*fetcher.Session)
	if !ok {
		return nil, entity.WithKind(entity.ErrorKindUnknown,
			fmt.Errorf("%w: %w: %T", entity.ErrWorkerCorrupted, ErrUnexpectedWorker, worker))
	}

	page, err := session.Get(ctx, req.Target(), fetcher.HeaderFor(req.Options()))
	if err != nil {
		return nil, err
	}
	if !fetcher.IsHTML(page.ContentType) {
		return nil, entity.WithKind(entity.ErrorKindUnknown,
			fmt.Errorf("%w: %s", ErrUnsupportedContent, page.ContentType))
	}

	pageURL, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse URL: %w", entity.ErrInvalidInput, err)
	}

	article, err := readability.FromReader(bytes.NewReader(page.Body), pageURL)
	if err != nil {
		return nil, entity.WithKind(entity.ErrorKindUnknown, fmt.Errorf("%w: readability: %v", ErrExtract, err))
	}

	content := strings.TrimSpace(article.TextContent)
	if content == "" {
		// Fallback to HTML content if text content is empty
		content = strings.TrimSpace(article.Content)
	}
	if content == "" {
		s.logger.Debug("no readable content",
			slog.String("url", page.URL),
			slog.String("session_id", session.ID()))
		return &entity.Result{FetchedAt: page.FetchedAt}, nil
	}

	title := collapseSpace(article.Title)
	if title == "" {
		title = collapseSpace(article.Excerpt)
	}

	return &entity.Result{
		Items: []entity.Item{{
			Title:     title,
			URL:       page.URL,
			Content:   content,
			MediaType: "text/plain",
		}},
		FetchedAt: page.FetchedAt,
	}, nil
}
