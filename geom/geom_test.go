package geom

import (
	"errors"
	"math"
	"testing"
)

func TestParseRect(t *testing.T) {
	r, err := ParseRect("[45,1059][249,1263]")
	if err != nil {
		t.Fatal(err)
	}
	if r != (Rect{45, 1059, 249, 1263}) {
		t.Fatalf("got %+v", r)
	}
	if r.String() != "[45,1059][249,1263]" {
		t.Fatalf("String: got %q", r.String())
	}

	if _, err := ParseRect(" [0, 0][0, 0] "); err != nil {
		t.Fatalf("degenerate bounds must parse: %v", err)
	}

	for _, bad := range []string{"", "[1,2][3]", "0,0,10,10", "[10,10][5,5]", "[a,b][c,d]"} {
		_, err := ParseRect(bad)
		var be *BoundsError
		if !errors.As(err, &be) {
			t.Fatalf("ParseRect(%q): want *BoundsError, got %v", bad, err)
		}
	}
}

func TestRect_Metrics(t *testing.T) {
	a := Rect{0, 0, 100, 100}
	b := Rect{50, 50, 150, 150}

	if got := a.IOU(b); math.Abs(got-2500.0/17500.0) > 1e-9 {
		t.Fatalf("IOU: got %f", got)
	}
	if got := a.IOU(Rect{200, 200, 300, 300}); got != 0 {
		t.Fatalf("disjoint IOU: got %f", got)
	}
	if got := a.CenterDistance(b); math.Abs(got-math.Hypot(50, 50)) > 1e-9 {
		t.Fatalf("CenterDistance: got %f", got)
	}
	if !a.Contains(Rect{10, 10, 20, 20}) || a.Contains(b) {
		t.Fatal("Contains mismatch")
	}
	if !(Rect{}).Empty() {
		t.Fatal("zero rect should be empty")
	}
	x, y := a.Center()
	if x != 50 || y != 50 {
		t.Fatalf("Center: got %d,%d", x, y)
	}
}

func TestMatchBounds_Exact(t *testing.T) {
	m, err := MatchBoundsString("[45,1059][249,1263]", "[45,1059][249,1263]")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Exact || m.IOU != 1.0 || m.Quality != 1.0 {
		t.Fatalf("exact match: got %+v", m)
	}
}

func TestMatchBounds_ContainedInRow(t *testing.T) {
	m, err := MatchBoundsString("[45,1059][249,1263]", "[0,1043][1080,1279]")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Contained {
		t.Fatal("reference should be contained in the row")
	}
	if m.Contains {
		t.Fatal("row is not inside the reference")
	}
	if m.Quality <= 0.5 {
		t.Fatalf("containment should be a meaningful partial match, quality=%f", m.Quality)
	}
}

func TestMatchBounds_Drift(t *testing.T) {
	m := MatchBounds(Rect{100, 100, 300, 300}, Rect{103, 102, 303, 302})
	if !m.Equivalent {
		t.Fatalf("small drift should be equivalent, iou=%f", m.IOU)
	}
	if m.Exact {
		t.Fatal("drifted bounds are not exact")
	}

	far := MatchBounds(Rect{0, 0, 100, 100}, Rect{900, 2000, 1000, 2100})
	if far.Overlap || far.Quality >= m.Quality {
		t.Fatalf("far rect should score lower: %+v", far)
	}
}

func TestMatchBounds_InvalidInput(t *testing.T) {
	if _, err := MatchBoundsString("nope", "[0,0][1,1]"); err == nil {
		t.Fatal("expected error for invalid reference")
	}
}

func TestComparePaths_Identical(t *testing.T) {
	p := "/hierarchy/node[1]/node[2]/node[3]"
	s := ComparePaths(p, p)
	if s.Score != 1.0 || !s.Exact {
		t.Fatalf("identical: got %+v", s)
	}
}

func TestComparePaths_DeepestIndexChanged(t *testing.T) {
	s := ComparePaths("/hierarchy/node[1]/node[2]/node[3]", "/hierarchy/node[1]/node[2]/node[4]")
	if s.Exact {
		t.Fatal("not exact")
	}
	if !s.ModeratelySimilar || s.Score <= 0.7 {
		t.Fatalf("want moderately similar, got %f", s.Score)
	}
}

func TestComparePaths_ExtraLevel(t *testing.T) {
	base := "/hierarchy/node[1]/node[2]/node[3]"
	same := ComparePaths(base, base).Score
	extraTail := ComparePaths(base, base+"/node[1]").Score
	extraMiddle := ComparePaths(base, "/hierarchy/node[1]/node[1]/node[2]/node[3]").Score
	if extraTail >= same {
		t.Fatalf("extra tail level: %f >= %f", extraTail, same)
	}
	if extraMiddle >= same {
		t.Fatalf("extra middle level: %f >= %f", extraMiddle, same)
	}
	if math.Abs(extraTail-0.9) > 1e-9 {
		t.Fatalf("extra tail level should cost exactly 0.1, got %f", extraTail)
	}
}

func TestComparePaths_Attributes(t *testing.T) {
	a := ParsePath("//node[@resource-id='com.app:id/follow' and @text='Follow']")
	if len(a) != 1 || a[0].Attrs["resource-id"] != "com.app:id/follow" || a[0].Attrs["text"] != "Follow" {
		t.Fatalf("ParsePath: got %+v", a)
	}
	s := ComparePaths("/hierarchy/node[@text='Follow']", "/hierarchy/node[@text='Following']")
	if s.Score >= 1 || s.Score <= 0.5 {
		t.Fatalf("attribute mismatch score out of range: %f", s.Score)
	}
}
