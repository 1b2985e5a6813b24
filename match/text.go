package match

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hazyhaar/uianchor/snapshot"
)

// textKeywords are action labels treated as stable regardless of length.
var textKeywords = []string{
	"关注", "已关注", "取消关注", "已添加", "Follow", "Following", "Unfollow",
	"点赞", "已点赞", "Like", "Liked", "收藏", "已收藏", "Favorite",
	"分享", "Share", "转发", "Repost", "评论", "Comment", "回复", "Reply",
	"更多", "More", "查看", "View", "编辑", "Edit", "删除", "Delete",
}

const (
	maxStableRunes     = 12
	shortStableRunes   = 6
	unstableConfidence = 0.30
)

// TextStability explains whether a label is usable as an identifier.
type TextStability struct {
	Stable bool
	Reason string
}

// CheckTextStability rejects labels that change between captures: numbers,
// times, prices and long free text.
func CheckTextStability(label string) TextStability {
	t := strings.TrimSpace(label)
	n := utf8.RuneCountInString(t)
	switch {
	case t == "":
		return TextStability{Reason: "empty"}
	case isNumeric(t):
		return TextStability{Reason: "numeric"}
	case strings.ContainsAny(t, ":：") && hasDigit(t):
		return TextStability{Reason: "time-like"}
	case strings.HasPrefix(t, "¥") || strings.HasPrefix(t, "$") || strings.HasPrefix(t, "￥"):
		return TextStability{Reason: "price"}
	case n > maxStableRunes:
		return TextStability{Reason: "too long"}
	}
	for _, k := range textKeywords {
		if strings.Contains(t, k) {
			return TextStability{Stable: true, Reason: "keyword " + k}
		}
	}
	if n <= shortStableRunes && !hasDigit(t) {
		return TextStability{Stable: true, Reason: "short label"}
	}
	return TextStability{Reason: "not a recognised stable label"}
}

// lengthConfidence favours short labels: they are less likely to be content.
func lengthConfidence(label string) float64 {
	switch n := utf8.RuneCountInString(strings.TrimSpace(label)); {
	case n <= 2:
		return 0.95
	case n <= 4:
		return 0.90
	case n <= 6:
		return 0.85
	}
	return 0.80
}

func scoreText(s *snapshot.Snapshot, a Anchor) Outcome {
	o := Outcome{Node: -1, Evidence: noEvidence()}

	label, source := a.Text, "text"
	if strings.TrimSpace(label) == "" {
		label, source = a.Desc, "content-desc"
	}
	if strings.TrimSpace(label) == "" {
		o.Explain = "text: anchor has no text or description"
		if i, ok := Locate(s, a); ok {
			o.Node = i
		}
		return o
	}
	o.Evidence.Label = label
	o.Evidence.LabelSource = source

	hits := labelled(s, label)
	o.Evidence.Occurrences = len(hits)
	switch {
	case len(hits) == 1:
		o.Node = hits[0]
	default:
		if i, ok := Locate(s, a); ok {
			o.Node = i
		}
	}

	st := CheckTextStability(label)
	if !st.Stable {
		o.Confidence = unstableConfidence
		if len(hits) == 0 {
			o.Confidence = 0
		}
		o.Explain = fmt.Sprintf("text: %q unstable (%s), %d occurrence(s)", label, st.Reason, len(hits))
		return o
	}
	if len(hits) == 0 {
		o.Explain = fmt.Sprintf("text: %q not present in snapshot", label)
		return o
	}

	base := lengthConfidence(label)
	o.Confidence = base / float64(len(hits))
	o.Explain = fmt.Sprintf("text: %q %s via %s, %d occurrence(s), base=%.2f", label, st.Reason, source, len(hits), base)
	return o
}

func isNumeric(t string) bool {
	for _, r := range t {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}

func hasDigit(t string) bool {
	for _, r := range t {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
