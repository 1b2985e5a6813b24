package recovery

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// CompareText scores the similarity of two labels in [0,1]:
//
//	1.0   identical
//	0.98  equal after NFKC and case folding
//	0.95  equal once whitespace is removed as well
//	0.8×  shorter/longer when one contains the other
//	0.7×  shared runes / longer length otherwise
func CompareText(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	fa, fb := fold(a), fold(b)
	if fa == fb {
		return 0.98
	}
	sa, sb := stripSpace(fa), stripSpace(fb)
	if sa == sb {
		return 0.95
	}
	la, lb := utf8.RuneCountInString(sa), utf8.RuneCountInString(sb)
	if la == 0 || lb == 0 {
		return 0
	}
	if strings.Contains(sa, sb) || strings.Contains(sb, sa) {
		return 0.8 * float64(min(la, lb)) / float64(max(la, lb))
	}
	return 0.7 * float64(commonRunes(sa, sb)) / float64(max(la, lb))
}

// fold builds a fresh Caser per call: cases.Caser is not safe for
// concurrent use.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// commonRunes is the size of the multiset intersection of the runes of a
// and b.
func commonRunes(a, b string) int {
	counts := map[rune]int{}
	for _, r := range a {
		counts[r]++
	}
	n := 0
	for _, r := range b {
		if counts[r] > 0 {
			counts[r]--
			n++
		}
	}
	return n
}
