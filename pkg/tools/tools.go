package tools

import (
	"io"
	"mime"
	"strings"
)

func DrainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// IsJSON reports whether a Content-Type header names a JSON payload.
func IsJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Truncate caps s at limit runes; longer strings keep limit-len(suffix) runes followed by suffix.
func Truncate(s string, limit int, suffix string) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	keep := limit - len([]rune(suffix))
	if keep < 0 {
		keep = 0
	}

	return string(runes[:keep]) + suffix
}
