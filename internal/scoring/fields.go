// Package scoring implements the field-level and composite scorers used to
// compare two patient records: §4.C field scorers and §4.D composite
// scorers. Every function here is pure and contains no suspension points.
package scoring

import (
	"strings"
	"time"

	"github.com/carelattice/mpi/internal/domain/patient"
	"github.com/carelattice/mpi/internal/normalize"
	"github.com/carelattice/mpi/internal/similarity"
)

// bestOf returns the higher of the Jaro-Winkler and normalized Levenshtein
// similarity between two already-normalized strings.
func bestOf(a, b string) float64 {
	jw := similarity.JaroWinkler(a, b)
	lev := similarity.NormalizedLevenshtein(a, b)
	if lev > jw {
		return lev
	}
	return jw
}

// FamilyScore compares two family names after normalization. Exact match
// (post-normalization) scores 1.0; otherwise the best of Jaro-Winkler and
// normalized Levenshtein.
func FamilyScore(a, b string) float64 {
	na, nb := normalize.NameToken(a), normalize.NameToken(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	return bestOf(na, nb)
}

// GivenScore compares the first given-name token of each side after
// normalization. Exact match scores 1.0, a recognized nickname-class
// equivalence scores 0.95, otherwise the best of Jaro-Winkler and
// normalized Levenshtein. An empty token on either side scores 0.0.
func GivenScore(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	ta := normalize.NameToken(a[0])
	tb := normalize.NameToken(b[0])
	if ta == "" || tb == "" {
		return 0.0
	}
	if ta == tb {
		return 1.0
	}
	if similarity.NicknameEquivalent(ta, tb) {
		return 0.95
	}
	return bestOf(ta, tb)
}

// prefixSuffixScore returns the maximum pairwise similarity across all
// prefix/suffix token combinations on both names, or 0.0 if either side
// supplies neither prefixes nor suffixes.
func prefixSuffixScore(a, b *patient.PatientName) float64 {
	var aTokens, bTokens []string
	aTokens = append(aTokens, a.Prefix...)
	aTokens = append(aTokens, a.Suffix...)
	bTokens = append(bTokens, b.Prefix...)
	bTokens = append(bTokens, b.Suffix...)

	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0.0
	}

	max := 0.0
	for _, ta := range aTokens {
		na := normalize.NameToken(ta)
		for _, tb := range bTokens {
			nb := normalize.NameToken(tb)
			if na == "" || nb == "" {
				continue
			}
			s := bestOf(na, nb)
			if na == nb {
				s = 1.0
			}
			if s > max {
				max = s
			}
		}
	}
	return max
}

// NameComposite combines family, given, and prefix/suffix scores per
// 0.50*family + 0.40*given + 0.10*prefix_suffix.
func NameComposite(a, b *patient.PatientName) float64 {
	if a == nil || b == nil {
		return 0.0
	}
	family := FamilyScore(a.Family, b.Family)
	given := GivenScore(a.Given, b.Given)
	ps := prefixSuffixScore(a, b)
	return 0.50*family + 0.40*given + 0.10*ps
}

// dateParts extracts the calendar (year, month, day) from a time.Time,
// ignoring time-of-day and location.
func dateParts(t time.Time) (int, int, int) {
	return t.Year(), int(t.Month()), t.Day()
}

// DOBScore applies the graduated date-of-birth tolerance rules in the
// exact evaluation order the spec requires; ties are resolved by the
// earliest matching rule.
func DOBScore(a, b *time.Time) float64 {
	if a == nil && b == nil {
		return 0.5
	}
	if a == nil || b == nil {
		return 0.0
	}

	y1, m1, d1 := dateParts(*a)
	y2, m2, d2 := dateParts(*b)

	if y1 == y2 && m1 == m2 && d1 == d2 {
		return 1.0
	}

	if y1 == y2 && m1 == m2 {
		diff := d1 - d2
		if diff < 0 {
			diff = -diff
		}
		if diff == 1 || diff == 2 {
			return 0.95
		}
	}

	// Month/day transposition: (m1,d1) is the pair (d2,m2).
	if y1 == y2 && m1 == d2 && d1 == m2 {
		return 0.90
	}

	if y1 == y2 && m1 == m2 {
		diff := d1 - d2
		if diff < 0 {
			diff = -diff
		}
		if diff >= 3 {
			return 0.80
		}
	}

	yearDiff := y1 - y2
	if yearDiff < 0 {
		yearDiff = -yearDiff
	}
	if yearDiff == 1 && m1 == m2 && d1 == d2 {
		return 0.85
	}

	if y1 == y2 {
		return 0.50
	}

	return 0.0
}

// GenderScore compares administrative gender values. Equal scores 1.0,
// either side unknown scores 0.5, otherwise 0.0.
func GenderScore(a, b patient.Gender) float64 {
	if a == b {
		return 1.0
	}
	if a == patient.GenderUnknown || b == patient.GenderUnknown || a == "" || b == "" {
		return 0.5
	}
	return 0.0
}

// postalScore compares two normalized postal codes: equal scores 1.0,
// equal 5-digit prefix scores 0.95, equal 3-digit prefix scores 0.70,
// otherwise 0.0.
func postalScore(a, b *string) float64 {
	if a == nil || b == nil {
		return 0.0
	}
	na := normalize.Postal(*a)
	nb := normalize.Postal(*b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	if len(na) >= 5 && len(nb) >= 5 && na[:5] == nb[:5] {
		return 0.95
	}
	if len(na) >= 3 && len(nb) >= 3 && na[:3] == nb[:3] {
		return 0.70
	}
	return 0.0
}

func cityScore(a, b *string) float64 {
	if a == nil || b == nil {
		return 0.0
	}
	na := normalize.NameToken(*a)
	nb := normalize.NameToken(*b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	return bestOf(na, nb)
}

func stateScore(a, b *string) float64 {
	if a == nil || b == nil {
		return 0.0
	}
	na := strings.ToUpper(strings.TrimSpace(*a))
	nb := strings.ToUpper(strings.TrimSpace(*b))
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	return 0.0
}

func streetScore(a, b *string) float64 {
	if a == nil || b == nil {
		return 0.0
	}
	na := normalize.Street(*a)
	nb := normalize.Street(*b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	return bestOf(na, nb)
}

// addressPairScore computes 0.30*postal + 0.20*city + 0.20*state +
// 0.30*street for a single pair of addresses.
func addressPairScore(a, b *patient.PatientAddress) float64 {
	return 0.30*postalScore(a.PostalCode, b.PostalCode) +
		0.20*cityScore(a.City, b.City) +
		0.20*stateScore(a.State, b.State) +
		0.30*streetScore(a.Line1, b.Line1)
}

// AddressScore returns the maximum pairwise address score across every
// combination of addresses on both sides; 0.0 if either side has none.
func AddressScore(as, bs []patient.PatientAddress) float64 {
	if len(as) == 0 || len(bs) == 0 {
		return 0.0
	}
	max := 0.0
	for i := range as {
		for j := range bs {
			s := addressPairScore(&as[i], &bs[j])
			if s > max {
				max = s
			}
		}
	}
	return max
}

// identifierPairScore compares a single identifier pair: 0.0 if type or
// system differ, raw-equal value scores 1.0, normalized-equal scores
// 0.98, otherwise 0.0.
func identifierPairScore(a, b *patient.PatientIdentifier) float64 {
	if a.Type != b.Type || a.System != b.System {
		return 0.0
	}
	if a.Value == b.Value {
		return 1.0
	}
	if normalize.IdentifierValue(a.Value) == normalize.IdentifierValue(b.Value) {
		return 0.98
	}
	return 0.0
}

// IdentifierScore returns the maximum pairwise identifier score across
// every combination on both sides; 0.0 if either side has none.
func IdentifierScore(as, bs []patient.PatientIdentifier) float64 {
	if len(as) == 0 || len(bs) == 0 {
		return 0.0
	}
	max := 0.0
	for i := range as {
		for j := range bs {
			s := identifierPairScore(&as[i], &bs[j])
			if s > max {
				max = s
			}
		}
	}
	return max
}
