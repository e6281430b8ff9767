// Package postprocess normalizes raw model output before it is parsed or
// displayed.
package postprocess

import (
	"strings"
	"unicode/utf8"
)

// Fence markers the critic sometimes wraps its JSON verdict in. The tagged
// marker is removed first so that no stray "json" is left behind.
const (
	jsonFence = "```json"
	fence     = "```"
)

// StripCodeFences removes every ```json and ``` marker from text and trims the
// surrounding whitespace. Markers are removed wherever they appear, not only
// at the edges.
func StripCodeFences(text string) string {
	text = strings.ReplaceAll(text, jsonFence, "")
	text = strings.ReplaceAll(text, fence, "")
	return strings.TrimSpace(text)
}

// Preview shortens text to at most limit runes and appends "..." for the
// iteration log. Text is always suffixed so previews line up in listings.
func Preview(text string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	if utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	return text + "..."
}
