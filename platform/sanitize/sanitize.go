// Package sanitize cleans free text submitted through website forms before it
// is stored or forwarded to a dialer.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", "\"",
	"&#39;", "'",
	"&nbsp;", " ",
)

// StripHTML removes HTML tags, including tags hidden behind entity encoding.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	return htmlTagRegex.ReplaceAllString(result, "")
}

// Field strips HTML, drops control characters and collapses runs of
// whitespace into single spaces.
func Field(s string) string {
	s = StripHTML(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
