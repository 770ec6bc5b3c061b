// Package scraper implements the web acquisition strategies: render
// (readable-article extraction on a pooled session), fetch (lightweight
// download parsed with CSS selectors), feed (RSS/Atom/JSON Feed) and
// placeholder (page metadata only).
//
// Strategies download through fetcher, so every request is validated
// against SSRF, size-limited and paced per host.
package scraper

import (
	"context"
	"errors"
	"net/http"

	"acquirer/internal/infra/fetcher"
)

// Strategy names.
const (
	NameRender      = "render"
	NameFetch       = "fetch"
	NameFeed        = "feed"
	NamePlaceholder = "placeholder"
)

var (
	// ErrUnsupportedContent indicates a response whose content type the
	// strategy cannot parse.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrExtract indicates that a document could not be parsed.
	ErrExtract = errors.New("content extraction failed")

	// ErrUnexpectedWorker indicates a pooled worker of the wrong type.
	ErrUnexpectedWorker = errors.New("unexpected worker type")
)

// Getter downloads a page. *fetcher.Client and *fetcher.Session satisfy it.
type Getter interface {
	Get(ctx context.Context, rawURL string, header http.Header) (*fetcher.Page, error)
}
