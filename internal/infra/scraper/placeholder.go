package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"acquirer/internal/domain/entity"
	"acquirer/internal/infra/fetcher"
	"acquirer/internal/resilience/workerpool"
)

// PlaceholderStrategy is the strategy of last resort: it records what the
// page says about itself (title, description, canonical link) without
// extracting any body content.
type PlaceholderStrategy struct {
	client Getter
}

// NewPlaceholderStrategy creates the placeholder strategy.
func NewPlaceholderStrategy(client Getter) *PlaceholderStrategy {
	return &PlaceholderStrategy{client: client}
}

// Name returns "placeholder".
func (s *PlaceholderStrategy) Name() string { return NamePlaceholder }

// Attempt returns a single item built from page metadata, or an empty
// result when the page has neither a title nor a description.
func (s *PlaceholderStrategy) Attempt(ctx context.Context, req *entity.AcquisitionRequest, _ workerpool.Worker) (*entity.Result, error) {
	page, err := s.client.Get(ctx, req.Target(), fetcher.HeaderFor(req.Options()))
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}

	title := firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"]`),
		collapseSpace(doc.Find("title").First().Text()),
	)
	description := firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
	)
	if title == "" && description == "" {
		return &entity.Result{FetchedAt: page.FetchedAt}, nil
	}

	link := page.URL
	if canonical, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && strings.TrimSpace(canonical) != "" {
		link = resolveURL(page.URL, canonical)
	}

	return &entity.Result{
		Items: []entity.Item{{
			Title:       title,
			URL:         link,
			Content:     description,
			PublishedAt: parseDate(metaContent(doc, `meta[property="article:published_time"]`), ""),
			MediaType:   "text/plain",
		}},
		FetchedAt: page.FetchedAt,
	}, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return collapseSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
