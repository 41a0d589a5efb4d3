package domain

import (
	"regexp"
	"strings"
)

// ─── Input Sanitisation ─────────────────────────────────────────────────────
// Stored content is agent-supplied. Strip the characters and URI schemes that
// would matter if a renderer ever echoes it back unescaped.

var (
	unsafeChars   = regexp.MustCompile(`[<>'"&\\]`)
	jsURIPattern  = regexp.MustCompile(`(?i)javascript:`)
	eventHandlers = regexp.MustCompile(`(?i)on\w+=`)
)

// Sanitize trims, bounds to maxLen runes, and strips markup-significant
// characters, javascript: URIs, and inline event handlers.
func Sanitize(input string, maxLen int) string {
	s := strings.TrimSpace(input)
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	s = unsafeChars.ReplaceAllString(s, "")
	s = jsURIPattern.ReplaceAllString(s, "")
	s = eventHandlers.ReplaceAllString(s, "")
	return s
}

// SanitizeTags bounds a tag list to 5 entries of at most 30 runes each.
func SanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	if len(tags) > 5 {
		tags = tags[:5]
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, Sanitize(t, 30))
	}
	return out
}
