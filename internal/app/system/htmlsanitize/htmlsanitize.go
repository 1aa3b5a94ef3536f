// Package htmlsanitize cleans user-supplied labels (group names, nicknames,
// icons) before they are stored and shown to every member of a group.
package htmlsanitize

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText strips all markup, decodes entities, and collapses whitespace.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	cleaned := html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Label returns PlainText(s) cut to at most max runes.
func Label(s string, max int) string {
	out := PlainText(s)
	if max <= 0 || utf8.RuneCountInString(out) <= max {
		return out
	}
	r := []rune(out)
	return strings.TrimSpace(string(r[:max]))
}
