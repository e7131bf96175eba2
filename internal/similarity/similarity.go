// Package similarity implements the string-similarity primitives the field
// scorers compose: Jaro-Winkler, normalized Levenshtein, and a static
// nickname-equivalence table.
package similarity

import (
	"github.com/agnivade/levenshtein"
)

// prefixScale is the Winkler prefix-boost weight; maxPrefix is the longest
// common prefix considered for the boost.
const (
	prefixScale = 0.1
	maxPrefix   = 4
)

// JaroWinkler returns the Jaro-Winkler similarity of a and b in [0,1],
// using the standard prefix scaling factor of 0.1 and a maximum common
// prefix length of 4. Inputs are compared byte-wise as given; callers are
// expected to normalize both sides symmetrically before calling this.
func JaroWinkler(a, b string) float64 {
	if a == b {
		if len(a) == 0 {
			return 1.0
		}
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	jaro := jaroDistance(a, b)
	if jaro == 0 {
		return 0
	}

	prefix := 0
	limit := maxPrefix
	if len(a) < limit {
		limit = len(a)
	}
	if len(b) < limit {
		limit = len(b)
	}
	for i := 0; i < limit; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*prefixScale*(1.0-jaro)
}

func jaroDistance(a, b string) float64 {
	aLen, bLen := len(a), len(b)
	if aLen == 0 && bLen == 0 {
		return 1.0
	}
	if aLen == 0 || bLen == 0 {
		return 0.0
	}

	matchDistance := aLen
	if bLen > matchDistance {
		matchDistance = bLen
	}
	matchDistance = matchDistance/2 - 1
	if matchDistance < 0 {
		matchDistance = 0
	}

	aMatches := make([]bool, aLen)
	bMatches := make([]bool, bLen)

	matches := 0
	for i := 0; i < aLen; i++ {
		start := i - matchDistance
		if start < 0 {
			start = 0
		}
		end := i + matchDistance + 1
		if end > bLen {
			end = bLen
		}
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < aLen; i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(aLen) + m/float64(bLen) + (m-float64(transpositions)/2)/m) / 3.0
}

// NormalizedLevenshtein returns 1 - edit_distance/max(|a|,|b|), in [0,1].
// Both strings empty returns 1; exactly one empty returns 0.
func NormalizedLevenshtein(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// nicknameClasses groups given-name variants that are considered
// equivalent for matching purposes. The table is a frozen process-wide
// constant; all entries are lowercase.
var nicknameClasses = [][]string{
	{"william", "bill", "billy", "will", "willy"},
	{"robert", "bob", "bobby", "rob", "robby"},
	{"richard", "dick", "rick", "ricky", "rich"},
	{"james", "jim", "jimmy", "jamie"},
	{"john", "jack", "johnny"},
	{"michael", "mike", "mickey"},
	{"elizabeth", "liz", "beth", "betty", "betsy"},
	{"margaret", "maggie", "meg", "peggy"},
	{"catherine", "katherine", "cathy", "kate", "katie", "kathy"},
}

// nicknameIndex maps each lowercase name to the index of its class in
// nicknameClasses, built once at init time for O(1) lookups.
var nicknameIndex = func() map[string]int {
	idx := make(map[string]int)
	for i, class := range nicknameClasses {
		for _, name := range class {
			idx[name] = i
		}
	}
	return idx
}()

// NicknameEquivalent reports whether a and b belong to the same
// nickname-equivalence class. The lookup is symmetric and case-sensitive
// on the already-lowercased inputs callers are expected to supply.
func NicknameEquivalent(a, b string) bool {
	if a == b {
		return false // equality is handled by the exact-match branch upstream
	}
	ia, ok := nicknameIndex[a]
	if !ok {
		return false
	}
	ib, ok := nicknameIndex[b]
	if !ok {
		return false
	}
	return ia == ib
}
