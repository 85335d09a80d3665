package dedup

import (
	"strings"

	"github.com/demispk444/profilemerge/internal/urlnorm"
)

// Similarity scores two strings in [0,1] using the edit-distance ratio
// (maxLen - levenshtein) / maxLen, case-insensitive. It is symmetric and
// equals 1.0 for identical inputs.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1.0
	}
	ar := []rune(a)
	br := []rune(b)
	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein(ar, br)
	return float64(maxLen-dist) / float64(maxLen)
}

// URLSimilarity scores two URLs on a fixed ladder: identical raw strings 1.0,
// identical after normalization 0.95, one normalized form containing the
// other 0.8, anything else the plain string similarity of the normalized
// forms.
func URLSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	na := urlnorm.Normalize(a)
	nb := urlnorm.Normalize(b)
	if na == nb {
		return 0.95
	}
	if na != "" && nb != "" && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return 0.8
	}
	return Similarity(na, nb)
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(ar, br []rune) int {
	if len(ar) < len(br) {
		ar, br = br, ar
	}
	if len(br) == 0 {
		return len(ar)
	}
	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ar {
		curr[0] = i + 1
		for j, cb := range br {
			ins := curr[j] + 1
			del := prev[j+1] + 1
			sub := prev[j]
			if ca != cb {
				sub++
			}
			curr[j+1] = min3(ins, del, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
