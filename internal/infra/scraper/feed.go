package scraper

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"

	"acquirer/internal/domain/entity"
	"acquirer/internal/infra/fetcher"
	"acquirer/internal/resilience/workerpool"
)

// FeedStrategy parses RSS, Atom and JSON feeds.
type FeedStrategy struct {
	client Getter
}

// NewFeedStrategy creates the feed strategy.
func NewFeedStrategy(client Getter) *FeedStrategy {
	return &FeedStrategy{client: client}
}

// Name returns "feed".
func (s *FeedStrategy) Name() string { return NameFeed }

// Attempt downloads and parses the feed at the target URL.
func (s *FeedStrategy) Attempt(ctx context.Context, req *entity.AcquisitionRequest, _ workerpool.Worker) (*entity.Result, error) {
	header := fetcher.HeaderFor(req.Options())
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")
	}
	page, err := s.client.Get(ctx, req.Target(), header)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, entity.WithKind(entity.ErrorKindUnknown, fmt.Errorf("%w: parse feed: %v", ErrExtract, err))
	}

	items := make([]entity.Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		// Prefer full content, fall back to the summary.
		content := it.Content
		if content == "" {
			content = it.Description
		}
		item := entity.Item{
			Title:   collapseSpace(it.Title),
			URL:     resolveURL(page.URL, it.Link),
			Content: content,
		}
		if it.PublishedParsed != nil {
			item.PublishedAt = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			item.PublishedAt = *it.UpdatedParsed
		}
		if len(it.Enclosures) > 0 {
			item.MediaType = it.Enclosures[0].Type
		}
		items = append(items, item)
	}
	return &entity.Result{Items: items, FetchedAt: page.FetchedAt}, nil
}
