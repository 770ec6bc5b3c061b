// Package text provides rune-aware helpers for text sent to language and
// speech providers.
package text

import "unicode/utf8"

// CountRunes counts Unicode characters rather than bytes, so "日本語"
// counts as 3.
func CountRunes(text string) int {
	return utf8.RuneCountInString(text)
}

// TruncateRunes cuts text to at most limit runes without splitting a
// multi-byte character. It reports whether anything was cut. A
// non-positive limit leaves text unchanged.
func TruncateRunes(text string, limit int) (string, bool) {
	if limit <= 0 {
		return text, false
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i], true
		}
		n++
	}
	return text, false
}
