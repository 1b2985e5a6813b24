package geom

import (
	"strconv"
	"strings"
)

// PathStep is one parsed level of a structural path such as
// "node[3]" or "node[@resource-id='x']".
type PathStep struct {
	Tag   string
	Index int // 1-based; 0 when absent
	Attrs map[string]string
}

// PathSimilarity is the per-level comparison of two structural paths.
type PathSimilarity struct {
	Score             float64 `json:"similarity"`
	Exact             bool    `json:"is_exact"`
	HighlySimilar     bool    `json:"is_highly_similar"`
	ModeratelySimilar bool    `json:"is_moderately_similar"`
	LengthDifference  int     `json:"length_difference"`
	MatchedLevels     int     `json:"matched_levels"`
}

// ParsePath splits a path into steps. Empty segments ("//") are skipped.
func ParsePath(path string) []PathStep {
	var steps []PathStep
	for _, seg := range splitPath(path) {
		if seg == "" {
			continue
		}
		steps = append(steps, parseStep(seg))
	}
	return steps
}

// splitPath splits on '/' outside of brackets so attribute values may contain slashes.
func splitPath(path string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '/':
			if depth == 0 {
				out = append(out, path[start:i])
				start = i + 1
			}
		}
	}
	return append(out, path[start:])
}

func parseStep(seg string) PathStep {
	st := PathStep{}
	idx := strings.IndexByte(seg, '[')
	if idx < 0 {
		st.Tag = seg
		return st
	}
	st.Tag = seg[:idx]
	rest := seg[idx:]
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		pred := rest[1:end]
		rest = rest[end+1:]
		if n, err := strconv.Atoi(pred); err == nil {
			st.Index = n
			continue
		}
		for _, part := range strings.Split(pred, " and ") {
			part = strings.TrimSpace(part)
			if !strings.HasPrefix(part, "@") {
				continue
			}
			if st.Attrs == nil {
				st.Attrs = map[string]string{}
			}
			if eq := strings.IndexByte(part, '='); eq > 0 {
				st.Attrs[part[1:eq]] = strings.Trim(part[eq+1:], `'"`)
			} else {
				st.Attrs[part[1:]] = ""
			}
		}
	}
	return st
}

// ComparePaths scores two structural paths. Identical strings score 1.0.
// Levels present in both paths are compared pairwise; deeper levels weigh
// more ((i+1)/maxLen). Each level of length difference costs 0.1.
func ComparePaths(a, b string) PathSimilarity {
	if a == b {
		return PathSimilarity{
			Score: 1, Exact: true, HighlySimilar: true, ModeratelySimilar: true,
			MatchedLevels: len(ParsePath(a)),
		}
	}
	sa, sb := ParsePath(a), ParsePath(b)
	res := PathSimilarity{LengthDifference: abs(len(sa) - len(sb))}
	maxLen := max(len(sa), len(sb))
	common := min(len(sa), len(sb))
	if maxLen == 0 || common == 0 {
		return res
	}

	var total, weights float64
	for i := 0; i < common; i++ {
		w := float64(i+1) / float64(maxLen)
		s := compareSteps(sa[i], sb[i])
		if s >= 0.99 {
			res.MatchedLevels++
		}
		total += s * w
		weights += w
	}
	score := total / weights
	score -= 0.1 * float64(res.LengthDifference)
	res.Score = Clamp01(score)
	res.HighlySimilar = res.Score > 0.9
	res.ModeratelySimilar = res.Score > 0.7
	return res
}

// compareSteps weighs tag 0.4, index 0.3, attributes 0.3.
func compareSteps(a, b PathStep) float64 {
	var s float64
	if a.Tag == b.Tag || a.Tag == "*" || b.Tag == "*" {
		s += 0.4
	}

	switch {
	case a.Index == b.Index:
		s += 0.3
	case a.Index > 0 && b.Index > 0:
		if d := abs(a.Index - b.Index); d <= 2 {
			s += 0.3 * (1 - 0.2*float64(d))
		}
	default:
		s += 0.1
	}

	if len(a.Attrs) == 0 && len(b.Attrs) == 0 {
		s += 0.3
	} else {
		common := 0
		for k, v := range a.Attrs {
			if bv, ok := b.Attrs[k]; ok && bv == v {
				common++
			}
		}
		s += 0.3 * 2 * float64(common) / float64(len(a.Attrs)+len(b.Attrs))
	}
	return s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
