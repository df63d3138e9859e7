package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeCaption returns text in NFC form with control characters dropped
// and every whitespace run collapsed to a single space. The result is empty
// when the caption carries no printable content.
func NormalizeCaption(text string) string {
	composed := norm.NFC.String(text)
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			return -1
		case unicode.Is(unicode.Cf, r):
			return -1
		default:
			return r
		}
	}, composed)
	return strings.Join(strings.Fields(cleaned), " ")
}
