package container

import (
	"cmp"
	"slices"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/snapshot"
)

// Layout is the geometric arrangement of a container's items.
type Layout int

const (
	LayoutUnknown Layout = iota
	LayoutList
	LayoutMasonrySingle
	LayoutUniformGrid
	LayoutWaterfallMulti
)

func (l Layout) String() string {
	switch l {
	case LayoutList:
		return "list"
	case LayoutMasonrySingle:
		return "masonry_single"
	case LayoutUniformGrid:
		return "uniform_grid"
	case LayoutWaterfallMulti:
		return "waterfall_multi"
	}
	return "unknown"
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// GeometryScore is how much the layout itself vouches for card-like items.
func (l Layout) GeometryScore() float64 {
	switch l {
	case LayoutWaterfallMulti:
		return 0.9
	case LayoutMasonrySingle:
		return 0.85
	case LayoutUniformGrid:
		return 0.8
	case LayoutList:
		return 0.75
	}
	return 0.5
}

const (
	minItemSide       = 20
	columnTolerance   = 12
	waterfallVariance = 10_000
	masonrySpread     = 60
)

// Classify inspects the direct children of container larger than 20×20.
// Children are clustered into columns by left edge (±12px). Several columns
// with a summed in-column height variance above 10000 make a waterfall,
// otherwise a grid; a single column whose heights spread more than 60px is
// masonry, otherwise a list. Fewer than three items is Unknown.
func Classify(s *snapshot.Snapshot, container int) Layout {
	var items []geom.Rect
	for _, c := range s.Children(container) {
		b := s.Node(c).Bounds
		if b.Width() > minItemSide && b.Height() > minItemSide {
			items = append(items, b)
		}
	}
	if len(items) < 3 {
		return LayoutUnknown
	}

	slices.SortStableFunc(items, func(a, b geom.Rect) int { return cmp.Compare(a.Left, b.Left) })
	var cols [][]geom.Rect
	for _, b := range items {
		if n := len(cols); n > 0 {
			last := cols[n-1]
			sum := 0
			for _, x := range last {
				sum += x.Left
			}
			mean := float64(sum) / float64(len(last))
			if d := float64(b.Left) - mean; d >= -columnTolerance && d <= columnTolerance {
				cols[n-1] = append(last, b)
				continue
			}
		}
		cols = append(cols, []geom.Rect{b})
	}

	if len(cols) >= 2 {
		variance := 0.0
		for _, col := range cols {
			if len(col) < 2 {
				continue
			}
			mean := 0.0
			for _, b := range col {
				mean += float64(b.Height())
			}
			mean /= float64(len(col))
			v := 0.0
			for _, b := range col {
				d := float64(b.Height()) - mean
				v += d * d
			}
			variance += v / float64(len(col))
		}
		if variance > waterfallVariance {
			return LayoutWaterfallMulti
		}
		return LayoutUniformGrid
	}

	lo, hi := cols[0][0].Height(), cols[0][0].Height()
	for _, b := range cols[0] {
		lo, hi = min(lo, b.Height()), max(hi, b.Height())
	}
	if hi > lo+masonrySpread {
		return LayoutMasonrySingle
	}
	return LayoutList
}
