// Package normalize implements the pure, deterministic canonicalization
// functions every field scorer relies on before comparing two records.
// Every function here must be idempotent: normalizing an already-normalized
// value returns it unchanged.
package normalize

import (
	"strings"
	"unicode"
)

// streetAbbreviations collapses the long and short forms of common street
// suffixes onto a single canonical short form so "Street" and "St" compare
// equal after normalization. The map is applied both ways by first
// expanding nothing and instead rewriting every known long form to its
// short form; since both sides of a comparison pass through the same
// table, "St" vs "St" and "Street" vs "St" both end up comparing the short
// forms.
var streetAbbreviations = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"road":      "rd",
	"drive":     "dr",
	"boulevard": "blvd",
	"lane":      "ln",
	"court":     "ct",
	"circle":    "cir",
	"place":     "pl",
	"apartment": "apt",
	"suite":     "ste",
}

// NameToken lowercases, trims, collapses internal whitespace, and strips
// punctuation from a single name token (a given name, a family name, a
// prefix, or a suffix). No diacritic folding is performed.
func NameToken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)

	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace && b.Len() > 0 {
				b.WriteRune(' ')
				prevSpace = true
			}
		case unicode.IsPunct(r):
			// dropped
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Postal strips every non-alphanumeric character and uppercases the
// result.
func Postal(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Street lowercases, strips punctuation, and rewrites common street-suffix
// abbreviations to a single canonical short form so that "Street"/"St",
// "Avenue"/"Ave", "Road"/"Rd", "Drive"/"Dr", "Boulevard"/"Blvd",
// "Lane"/"Ln", "Court"/"Ct", and "Circle"/"Cir" compare equal.
func Street(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)

	fields := strings.Fields(s)
	for i, f := range fields {
		if canon, ok := streetAbbreviations[f]; ok {
			fields[i] = canon
		}
	}
	return strings.Join(fields, " ")
}

// IdentifierValue strips spaces and dashes and lowercases the remaining
// characters, preserving everything else verbatim.
func IdentifierValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
