package match

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/snapshot"
)

// Anchor describes the element a user originally chose, with enough
// redundant data to find it again after the tree has drifted.
type Anchor struct {
	Path       string    `json:"path,omitempty"`
	Text       string    `json:"text,omitempty"`
	Desc       string    `json:"content_desc,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	Class      string    `json:"class,omitempty"`
	Bounds     geom.Rect `json:"bounds"`
	// Ancestors is the class chain above the node, nearest first.
	Ancestors []string `json:"ancestors,omitempty"`
}

// ancestorSignatureDepth bounds the class chain captured with an anchor.
const ancestorSignatureDepth = 3

// AnchorFromNode captures node i of s as an Anchor.
func AnchorFromNode(s *snapshot.Snapshot, i int) Anchor {
	n := s.Node(i)
	a := Anchor{
		Path:       n.Path,
		Text:       n.Text,
		Desc:       n.Desc,
		ResourceID: n.ResourceID,
		Class:      n.Class,
		Bounds:     n.Bounds,
	}
	for _, p := range s.Ancestors(i, ancestorSignatureDepth) {
		a.Ancestors = append(a.Ancestors, s.Node(p).Class)
	}
	return a
}

// Label is the anchor text, or its description when the text is empty.
func (a Anchor) Label() string {
	if a.Text != "" {
		return a.Text
	}
	return a.Desc
}

// Key is a short stable digest of the identifying fields, used for cache keys.
func (a Anchor) Key() string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		a.Path, a.Text, a.Desc, a.ResourceID, a.Class, a.Bounds.String(),
	}, "\x1f")))
	return hex.EncodeToString(h[:8])
}

// locateQuality is the bounds quality needed to accept a fuzzy position match.
const locateQuality = 0.6

// Locate resolves the anchor to a node of s. Resolution order: stored path
// (class must agree), exact bounds, unique resource-id, unique label, then
// the best same-class bounds match. It returns false when nothing qualifies.
func Locate(s *snapshot.Snapshot, a Anchor) (int, bool) {
	if a.Path != "" {
		if i, ok := s.ByPath(a.Path); ok && (a.Class == "" || s.Node(i).Class == a.Class) {
			return i, true
		}
	}

	if !a.Bounds.Empty() {
		var hits []int
		for _, i := range s.ExactBounds(a.Bounds) {
			if a.Class == "" || s.Node(i).Class == a.Class {
				hits = append(hits, i)
			}
		}
		if len(hits) == 1 {
			return hits[0], true
		}
		for _, i := range hits {
			if l := a.Label(); l != "" && s.Node(i).Label() == l {
				return i, true
			}
		}
	}

	if a.ResourceID != "" {
		if ids := s.ByResourceID(a.ResourceID); len(ids) == 1 {
			return ids[0], true
		}
	}

	if l := a.Label(); l != "" {
		if ids := labelled(s, l); len(ids) == 1 {
			return ids[0], true
		}
	}

	if a.Bounds.Empty() {
		return -1, false
	}
	best, bestQ := -1, locateQuality
	for i := 0; i < s.Len(); i++ {
		n := s.Node(i)
		if a.Class != "" && n.Class != a.Class {
			continue
		}
		if q := geom.MatchBounds(a.Bounds, n.Bounds).Quality; q >= bestQ {
			best, bestQ = i, q
		}
	}
	return best, best >= 0
}

func labelled(s *snapshot.Snapshot, label string) []int {
	out := s.ByText(label)
	for _, i := range s.ByDesc(label) {
		if s.Node(i).Text != label {
			out = append(out, i)
		}
	}
	return out
}
