// Package similarity scores how closely two entity names match.
//
// Scores are integers in [0, 100] derived from the Levenshtein distance of
// the normalized names. Confidence bucketing is kept separate from scoring
// so callers can supply their own thresholds.
package similarity

import (
	"math"
	"regexp"
	"strings"
)

// nonWord matches runs of characters that are neither letters, combining
// marks, digits, underscore nor whitespace, in any script.
var nonWord = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]+`)

// Normalize lowercases s, replaces punctuation and symbols with spaces,
// collapses whitespace runs to a single space and trims the result.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWord.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Levenshtein returns the edit distance between a and b, counting
// insertions, deletions and substitutions. Inputs are compared as given;
// callers normalize first.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity returns round(100 * (1 - distance/maxLen)) over the normalized
// forms of a and b. It is 0 when either input is empty and 100 when both
// normalize to the same string. Distinct inputs that both normalize to ""
// (punctuation only) score 0.
func Similarity(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		if na == "" && a != b {
			return 0
		}
		return 100
	}
	la, lb := len([]rune(na)), len([]rune(nb))
	if la == 0 || lb == 0 {
		return 0
	}

	dist := Levenshtein(na, nb)
	longest := max(la, lb)
	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}

// MatchWithAliases scores localName against a remote name and its aliases,
// returning the best score. The result is never lower than
// Similarity(localName, remoteName).
func MatchWithAliases(localName, remoteName string, remoteAliases []string) int {
	best := Similarity(localName, remoteName)
	for _, alias := range remoteAliases {
		if best == 100 {
			break
		}
		if s := Similarity(localName, alias); s > best {
			best = s
		}
	}
	return best
}

// BestMatch scores every local name against the remote name and aliases and
// returns the highest score. Empty local names are ignored.
func BestMatch(localNames []string, remoteName string, remoteAliases []string) int {
	best := 0
	for _, name := range localNames {
		if name == "" {
			continue
		}
		if s := MatchWithAliases(name, remoteName, remoteAliases); s > best {
			best = s
		}
	}
	return best
}
