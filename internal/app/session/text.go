package session

import (
	"strings"

	"quotespeak/pkg/tools"

	"golang.org/x/text/unicode/norm"
)

const DefaultMaxTextLength = 200

// PrepareText normalizes text to NFC and caps it at limit characters,
// marking cut text with a trailing ellipsis.
func PrepareText(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultMaxTextLength
	}

	text = strings.TrimSpace(norm.NFC.String(text))

	return tools.Truncate(text, limit, "...")
}
