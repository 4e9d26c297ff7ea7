// Package textx holds small text-cleaning helpers shared by the extraction
// and pipeline layers.
package textx

import "strings"

// SanitizeText strips control characters (keeping tab, newline and carriage
// return), drops a leading UTF-8 BOM, maps non-breaking spaces to regular
// ones and trims the result. Extracted transcripts routinely carry all of
// these.
func SanitizeText(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteRune(' ')
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(r)
		case r >= 32 && r != 127:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CollapseWhitespace reduces every run of whitespace, newlines included, to a
// single space. Transcript layout carries no meaning for the prompts and
// only costs tokens.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
