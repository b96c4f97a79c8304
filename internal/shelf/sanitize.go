package shelf

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// maxUnescapeRounds bounds how many layers of entity encoding are peeled.
const maxUnescapeRounds = 4

// plainText strips markup from user-supplied text. Sanitizing repeats until
// the text is stable, so entity-encoded tags cannot survive as markup once
// unescaped.
func plainText(s string) string {
	for range maxUnescapeRounds {
		next := html.UnescapeString(strict.Sanitize(s))
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

func sanitizeCustom(in CustomEntry) CustomEntry {
	return CustomEntry{
		Title:        plainText(in.Title),
		Description:  plainText(in.Description),
		ExternalLink: strings.TrimSpace(in.ExternalLink),
		Category:     plainText(in.Category),
	}
}
