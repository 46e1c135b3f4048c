package mood

import (
	"regexp"
	"strings"
)

const DefaultSpeechLimit = 400

var (
	emphasisRe = regexp.MustCompile(`\*.*?\*`)
	// anything but letters, digits, underscore, whitespace and ,.'!?
	unspeakableRe = regexp.MustCompile(`[^\p{L}\p{N}_\s,.'!?]`)
)

// Sanitize strips stage directions like *smiles* and emojis so the reply
// can be read aloud.
func Sanitize(text string) string {
	text = emphasisRe.ReplaceAllString(text, "")
	text = unspeakableRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Truncate cuts text to limit runes and marks the cut with "...".
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
