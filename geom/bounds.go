package geom

// EquivalentIOU is the overlap above which two rectangles are treated as the
// same element drawn with minor drift.
const EquivalentIOU = 0.9

// BoundsMatch compares a reference rectangle against a candidate.
type BoundsMatch struct {
	Exact bool `json:"is_exact"`
	// Contained is true when the reference lies inside the candidate.
	Contained bool `json:"is_contained"`
	// Contains is true when the candidate lies inside the reference.
	Contains       bool    `json:"contains"`
	Overlap        bool    `json:"is_overlap"`
	Equivalent     bool    `json:"is_equivalent"`
	IOU            float64 `json:"iou"`
	CenterDistance float64 `json:"center_distance"`
	Quality        float64 `json:"match_quality"`
}

// MatchBounds scores how well candidate stands in for ref.
//
// Quality is iou*0.5, plus 0.3 when ref is inside candidate, 0.25 when
// candidate is inside ref, or 0.15 when neither holds but iou > 0.5, plus up
// to 0.2 for center proximity. Proximity is normalised by the larger of the
// two diagonals so a small reference sitting inside a wide row still counts
// as a meaningful partial match.
func MatchBounds(ref, candidate Rect) BoundsMatch {
	if ref == candidate {
		return BoundsMatch{
			Exact:      true,
			Overlap:    true,
			Equivalent: true,
			IOU:        1,
			Quality:    1,
		}
	}

	m := BoundsMatch{
		IOU:            ref.IOU(candidate),
		CenterDistance: ref.CenterDistance(candidate),
		Contained:      candidate.Contains(ref),
		Contains:       ref.Contains(candidate),
	}
	_, m.Overlap = ref.Intersect(candidate)
	m.Equivalent = m.IOU >= EquivalentIOU

	q := m.IOU * 0.5
	switch {
	case m.Contained:
		q += 0.3
	case m.Contains:
		q += 0.25
	case m.IOU > 0.5:
		q += 0.15
	}
	maxDist := max(ref.Diagonal(), candidate.Diagonal())
	if maxDist > 0 {
		q += (1 - min(m.CenterDistance/maxDist, 1)) * 0.2
	}
	m.Quality = Clamp01(q)
	return m
}

// MatchBoundsString is MatchBounds over two bounds strings.
func MatchBoundsString(ref, candidate string) (BoundsMatch, error) {
	r, err := ParseRect(ref)
	if err != nil {
		return BoundsMatch{}, err
	}
	c, err := ParseRect(candidate)
	if err != nil {
		return BoundsMatch{}, err
	}
	return MatchBounds(r, c), nil
}
