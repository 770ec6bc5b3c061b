package scraper

import (
	"log/slog"

	"acquirer/internal/usecase/acquire"
)

// Factory creates the web strategies around one shared client.
type Factory struct {
	client Getter
	logger *slog.Logger
}

// NewFactory creates a Factory. The client should be a *fetcher.Client
// configured with the production safety limits.
func NewFactory(client Getter, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{client: client, logger: logger}
}

// Names returns the strategy names the factory knows, in default fallback
// order.
func Names() []string {
	return []string{NameRender, NameFetch, NameFeed, NamePlaceholder}
}

// NeedsSession reports whether a strategy must be registered with a pool
// of *fetcher.Session workers.
func NeedsSession(name string) bool {
	return name == NameRender
}

// Create returns the strategy with the given name.
func (f *Factory) Create(name string) (acquire.Strategy, bool) {
	switch name {
	case NameRender:
		return NewRenderStrategy(f.logger), true
	case NameFetch:
		return NewSelectorStrategy(f.client, f.logger), true
	case NameFeed:
		return NewFeedStrategy(f.client), true
	case NamePlaceholder:
		return NewPlaceholderStrategy(f.client), true
	default:
		return nil, false
	}
}
