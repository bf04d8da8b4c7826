package services

import "strings"

// CountWords splits on unicode whitespace.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

func sentenceEnd(word string) bool {
	trimmed := strings.TrimRight(word, `"')]`)
	return strings.HasSuffix(trimmed, ".") ||
		strings.HasSuffix(trimmed, "!") ||
		strings.HasSuffix(trimmed, "?")
}

// TruncateToWordLimit cuts text to at most limit words at the nearest
// sentence boundary at or below the limit. When no sentence ends inside
// the limit the cut falls on the limit itself. Returns the (possibly
// unchanged) text and whether a cut happened.
func TruncateToWordLimit(text string, limit int) (string, bool) {
	words := strings.Fields(text)
	if len(words) <= limit {
		return text, false
	}

	cut := 0
	for i := 0; i < limit; i++ {
		if sentenceEnd(words[i]) {
			cut = i + 1
		}
	}
	if cut == 0 {
		cut = limit
	}
	return strings.Join(words[:cut], " "), true
}
