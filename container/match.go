package container

import (
	"cmp"
	"slices"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/snapshot"
)

// Item is one scored direct child of the container.
type Item struct {
	Index         int       `json:"index"`
	Path          string    `json:"path"`
	Bounds        geom.Rect `json:"bounds"`
	Score         float64   `json:"score"`
	CardScore     float64   `json:"card_score"`
	GeometryScore float64   `json:"geometry_score"`
	Column        Column    `json:"column"`
}

// Result is the structured container match handed to callers.
type Result struct {
	ContainerID   int    `json:"container_id"`
	ContainerPath string `json:"container_path"`
	Layout        Layout `json:"layout"`
	Scope         Scope  `json:"scope"`
	Items         []Item `json:"items"`
}

// Match resolves the container for h, classifies it and scores every direct
// child as 0.7×card features + 0.3×layout geometry. Items under
// cfg.MinConfidence are dropped; the rest are sorted by score, descending.
func Match(s *snapshot.Snapshot, h Hint, cfg Config) Result {
	cfg.defaults()
	sc := Resolve(s, h, cfg)
	layout := Classify(s, sc.Container)
	geo := layout.GeometryScore()

	res := Result{
		ContainerID:   sc.Container,
		ContainerPath: s.Node(sc.Container).Path,
		Layout:        layout,
		Scope:         sc,
		Items:         []Item{},
	}
	for _, c := range s.Children(sc.Container) {
		n := s.Node(c)
		card := match.ExtractCardFeatures(s, c, match.FindClickableParent(s, c)).Score()
		score := 0.7*card + 0.3*geo
		if score < cfg.MinConfidence {
			continue
		}
		res.Items = append(res.Items, Item{
			Index:         c,
			Path:          n.Path,
			Bounds:        n.Bounds,
			Score:         score,
			CardScore:     card,
			GeometryScore: geo,
			Column:        ColumnOf(n.Bounds),
		})
	}
	slices.SortStableFunc(res.Items, func(a, b Item) int { return cmp.Compare(b.Score, a.Score) })
	return res
}
