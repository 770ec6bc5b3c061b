package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"acquirer/internal/domain/entity"
	"acquirer/internal/infra/fetcher"
	"acquirer/internal/resilience/workerpool"
)

// DefaultSelectors are used for any selector a request leaves empty.
var DefaultSelectors = entity.SelectorSet{
	Item:    "article",
	Title:   "h1, h2, h3",
	URL:     "a[href]",
	Date:    "time",
	Content: "p",
}

// SelectorStrategy downloads a page without a session and extracts one item
// per element matching the item selector.
type SelectorStrategy struct {
	client Getter
	logger *slog.Logger
}

// NewSelectorStrategy creates the fetch strategy.
func NewSelectorStrategy(client Getter, logger *slog.Logger) *SelectorStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SelectorStrategy{client: client, logger: logger}
}

// Name returns "fetch".
func (s *SelectorStrategy) Name() string { return NameFetch }

// Attempt downloads the target and extracts items. A page without matching
// elements yields an empty result, not an error.
func (s *SelectorStrategy) Attempt(ctx context.Context, req *entity.AcquisitionRequest, _ workerpool.Worker) (*entity.Result, error) {
	opts := req.Options()
	page, err := s.client.Get(ctx, req.Target(), fetcher.HeaderFor(opts))
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}

	items := extractItems(doc, page.URL, withDefaults(opts.Selectors), s.logger)
	return &entity.Result{Items: items, FetchedAt: page.FetchedAt}, nil
}

func withDefaults(sel entity.SelectorSet) entity.SelectorSet {
	if sel.Item == "" {
		sel.Item = DefaultSelectors.Item
	}
	if sel.Title == "" {
		sel.Title = DefaultSelectors.Title
	}
	if sel.URL == "" {
		sel.URL = DefaultSelectors.URL
	}
	if sel.Date == "" {
		sel.Date = DefaultSelectors.Date
	}
	if sel.Content == "" {
		sel.Content = DefaultSelectors.Content
	}
	return sel
}

// extractItems reads one item per sel.Item element. Elements without a
// title are skipped; the link falls back to the page itself.
func extractItems(doc *goquery.Document, pageURL string, sel entity.SelectorSet, logger *slog.Logger) []entity.Item {
	var items []entity.Item
	doc.Find(sel.Item).Each(func(i int, el *goquery.Selection) {
		title := collapseSpace(el.Find(sel.Title).First().Text())
		if title == "" {
			logger.Debug("skipping item with empty title", slog.Int("index", i))
			return
		}

		link := pageURL
		if href, ok := el.Find(sel.URL).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			link = resolveURL(pageURL, href)
		} else if href, ok := el.Attr("href"); ok {
			link = resolveURL(pageURL, href)
		}

		dateEl := el.Find(sel.Date).First()
		dateStr, ok := dateEl.Attr("datetime")
		if !ok {
			dateStr = dateEl.Text()
		}

		var paragraphs []string
		el.Find(sel.Content).Each(func(_ int, p *goquery.Selection) {
			if text := collapseSpace(p.Text()); text != "" {
				paragraphs = append(paragraphs, text)
			}
		})

		items = append(items, entity.Item{
			Title:       title,
			URL:         link,
			Content:     strings.Join(paragraphs, "\n\n"),
			PublishedAt: parseDate(dateStr, sel.DateFormat),
			MediaType:   "text/html",
		})
	})
	return items
}
