package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	escapedUnicode = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)
	underscoreRuns = regexp.MustCompile(`_{2,}`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// foldAccents decomposes characters and drops combining marks so that
// "réunion" survives ASCII stripping as "reunion".
var foldAccents = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// asciiOnly replaces anything outside printable ASCII with a space.
var asciiOnly = runes.Map(func(r rune) rune {
	if r > unicode.MaxASCII || !unicode.IsPrint(r) {
		return ' '
	}
	return r
})

// Clean strips generator noise: line breaks, literal \uXXXX escapes,
// non-ASCII and non-printable characters, underscore rules and repeated
// whitespace.
func Clean(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	s = escapedUnicode.ReplaceAllString(s, " ")
	if folded, _, err := transform.String(foldAccents, s); err == nil {
		s = folded
	}
	if mapped, _, err := transform.String(asciiOnly, s); err == nil {
		s = mapped
	}
	s = underscoreRuns.ReplaceAllString(s, " ")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
