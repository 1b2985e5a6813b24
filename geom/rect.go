// CLAUDE:SUMMARY Integer-pixel rectangles, bounds-string parsing and overlap metrics (IOU, containment, center distance).
// Package geom holds the rectangle type shared by every UI node and the pure
// geometry used to compare nodes across snapshots.
//
// Bounds strings follow the uiautomator form "[left,top][right,bottom]".
// Zero-area rectangles are legal: they denote nodes that are present in the
// tree but not visible on screen.
package geom

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var boundsRe = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// Rect is an axis-aligned rectangle in screen pixels.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// BoundsError reports a bounds string that cannot be parsed.
type BoundsError struct {
	Input  string
	Reason string
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("geom: invalid bounds %q: %s", e.Input, e.Reason)
}

// ParseRect parses "[l,t][r,b]". Whitespace is ignored. Inverted rectangles
// (right < left or bottom < top) are rejected.
func ParseRect(s string) (Rect, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	m := boundsRe.FindStringSubmatch(cleaned)
	if m == nil {
		return Rect{}, &BoundsError{Input: s, Reason: "expected [l,t][r,b]"}
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Rect{}, &BoundsError{Input: s, Reason: err.Error()}
		}
		v[i] = n
	}
	r := Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
	if r.Right < r.Left || r.Bottom < r.Top {
		return Rect{}, &BoundsError{Input: s, Reason: "inverted rectangle"}
	}
	return r, nil
}

// MustParseRect is ParseRect for literals known to be valid.
func MustParseRect(s string) Rect {
	r, err := ParseRect(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String renders r in bounds-string form.
func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.Left, r.Top, r.Right, r.Bottom)
}

func (r Rect) Width() int { return max(r.Right-r.Left, 0) }
func (r Rect) Height() int { return max(r.Bottom-r.Top, 0) }

// Area is computed in int64 so full-screen rectangles on tall devices never overflow.
func (r Rect) Area() int64 { return int64(r.Width()) * int64(r.Height()) }

// Empty reports a zero-area rectangle.
func (r Rect) Empty() bool { return r.Area() == 0 }

// Center returns the integer tap point of r.
func (r Rect) Center() (x, y int) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

func (r Rect) centerF() (float64, float64) {
	return float64(r.Left+r.Right) / 2, float64(r.Top+r.Bottom) / 2
}

// Diagonal is the length of r's diagonal in pixels.
func (r Rect) Diagonal() float64 {
	return math.Hypot(float64(r.Width()), float64(r.Height()))
}

// Contains reports whether o lies entirely inside r (edges inclusive).
func (r Rect) Contains(o Rect) bool {
	return r.Left <= o.Left && r.Top <= o.Top && r.Right >= o.Right && r.Bottom >= o.Bottom
}

// ContainsPoint reports whether (x, y) lies inside r (edges inclusive).
func (r Rect) ContainsPoint(x, y int) bool {
	return x >= r.Left && x <= r.Right && y >= r.Top && y <= r.Bottom
}

// Intersect returns the overlap of r and o, and false when they do not overlap
// with positive area.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	in := Rect{
		Left:   max(r.Left, o.Left),
		Top:    max(r.Top, o.Top),
		Right:  min(r.Right, o.Right),
		Bottom: min(r.Bottom, o.Bottom),
	}
	if in.Left >= in.Right || in.Top >= in.Bottom {
		return Rect{}, false
	}
	return in, true
}

// IOU is the intersection-over-union ratio of r and o, in [0,1].
func (r Rect) IOU(o Rect) float64 {
	in, ok := r.Intersect(o)
	if !ok {
		return 0
	}
	inter := float64(in.Area())
	union := float64(r.Area()+o.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterDistance is the Euclidean distance between the centers of r and o.
func (r Rect) CenterDistance(o Rect) float64 {
	x1, y1 := r.centerF()
	x2, y2 := o.centerF()
	return math.Hypot(x1-x2, y1-y2)
}

// AreaRatio is r's area as a fraction of screen's area. A zero-area screen yields 0.
func (r Rect) AreaRatio(screen Rect) float64 {
	sa := screen.Area()
	if sa <= 0 {
		return 0
	}
	return float64(r.Area()) / float64(sa)
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
