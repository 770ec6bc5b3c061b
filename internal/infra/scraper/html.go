package scraper

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"acquirer/internal/domain/entity"
	"acquirer/internal/infra/fetcher"
)

// parseHTML builds a goquery document from an HTML page.
func parseHTML(page *fetcher.Page) (*goquery.Document, error) {
	if !fetcher.IsHTML(page.ContentType) {
		return nil, entity.WithKind(entity.ErrorKindUnknown,
			fmt.Errorf("%w: %s", ErrUnsupportedContent, page.ContentType))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, entity.WithKind(entity.ErrorKindUnknown, fmt.Errorf("%w: parse HTML: %v", ErrExtract, err))
	}
	return doc, nil
}

// commonDateLayouts are tried when an explicit layout does not match.
var commonDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC1123,
}

// parseDate parses s with layout, then with common layouts. It returns the
// zero time when nothing matches, so unknown dates stay unknown.
func parseDate(s, layout string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	for _, l := range commonDateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t
		}
	}
	slog.Debug("failed to parse date",
		slog.String("date_str", s),
		slog.String("format", layout))
	return time.Time{}
}

// resolveURL makes ref absolute against base. Unparsable references are
// returned as given.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// collapseSpace trims s and folds runs of whitespace to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
