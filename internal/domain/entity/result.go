package entity

import (
	"crypto/sha256"
	"slices"
	"time"
)

// Item is one unit of acquired content: an article, a translated text or
// a synthesized audio clip.
type Item struct {
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	Content     string    `json:"content,omitempty"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	MediaType   string    `json:"media_type,omitempty"`
	Data        []byte    `json:"data,omitempty"`
}

// Result is what a strategy produced for a request.
type Result struct {
	RequestID string    `json:"request_id"`
	Key       string    `json:"key"`
	Strategy  string    `json:"strategy"`
	Items     []Item    `json:"items"`
	Attempts  int       `json:"attempts"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Empty reports whether the result carries no items.
func (r *Result) Empty() bool {
	return r == nil || len(r.Items) == 0
}

// DedupItems drops repeated items while keeping first-seen order. Items
// with a URL are compared by URL, the rest by a digest of their title,
// content and data.
func DedupItems(items []Item) []Item {
	if len(items) < 2 {
		return slices.Clone(items)
	}

	seenURL := make(map[string]struct{}, len(items))
	seenDigest := make(map[[sha256.Size]byte]struct{})
	out := make([]Item, 0, len(items))

	for _, it := range items {
		if it.URL != "" {
			if _, dup := seenURL[it.URL]; dup {
				continue
			}
			seenURL[it.URL] = struct{}{}
			out = append(out, it)
			continue
		}

		h := sha256.New()
		h.Write([]byte(it.Title))
		h.Write([]byte{0})
		h.Write([]byte(it.Content))
		h.Write([]byte{0})
		h.Write(it.Data)
		var d [sha256.Size]byte
		copy(d[:], h.Sum(nil))
		if _, dup := seenDigest[d]; dup {
			continue
		}
		seenDigest[d] = struct{}{}
		out = append(out, it)
	}
	return out
}
