// Package textnorm normalizes user text before it reaches the matchers.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases and trims text. It is safe for any input, including
// empty and invalid UTF-8 strings.
func Normalize(text string) string {
	// cases.Caser is stateful, so each call gets its own.
	return strings.TrimSpace(cases.Lower(language.Und).String(text))
}

// Fold strips diacritics so "café" and "cafe" compare equal.
func Fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// Tokens returns the word tokens of text: normalized, accent folded, and
// split on anything that is not a letter or digit. Single-character tokens
// are dropped.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(Fold(Normalize(text)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
