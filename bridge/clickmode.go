package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/uianchor/container"
	"github.com/hazyhaar/uianchor/geom"
)

// Kind names a ClickMode variant on the wire.
type Kind string

const (
	KindStructural     Kind = "structural_hierarchy"
	KindRelative       Kind = "relative_position"
	KindTextAugmented  Kind = "text_augmented_position"
	KindExactText      Kind = "exact_text_match"
	KindContainerIndex Kind = "container_index_match"
	KindDirect         Kind = "direct_coordinate"
)

// Relative position types.
const (
	PositionBottomAction   = "bottom-action"
	PositionSiblingContext = "sibling-context"
)

// ClickMode is a concrete execution instruction. The set of variants is
// closed: StructuralHierarchy, RelativePosition, TextAugmentedPosition,
// ExactTextMatch, ContainerIndexMatch and DirectCoordinate.
type ClickMode interface {
	Kind() Kind
	// Reliability estimates how likely the instruction is to hit the
	// intended element, in [0,1].
	Reliability() float64
	Describe() string
	clickMode()
}

// StructuralHierarchy taps the clickable parent found at a fixed depth
// under a card root.
type StructuralHierarchy struct {
	RootBounds      geom.Rect `json:"root_bounds"`
	ClickableBounds geom.Rect `json:"clickable_bounds"`
	Depth           int       `json:"hierarchy_depth"`
}

// RelativePosition taps the node at Target, interpreted relative to Reference.
type RelativePosition struct {
	Reference geom.Rect `json:"reference_bounds"`
	Target    geom.Rect `json:"target_bounds"`
	Position  string    `json:"position_type"`
}

// TextAugmentedPosition looks for Hint near FallbackBounds.
type TextAugmentedPosition struct {
	Hint           string    `json:"text_hint"`
	FallbackBounds geom.Rect `json:"fallback_bounds"`
	Context        string    `json:"context_description"`
}

// ExactTextMatch taps the node whose text (or description) equals Text.
type ExactTextMatch struct {
	Text           string    `json:"target_text"`
	Source         string    `json:"text_source"`
	Confidence     float64   `json:"confidence_level"`
	FallbackBounds geom.Rect `json:"fallback_bounds"`
}

// ContainerIndexMatch taps the Index-th item of the list at ContainerBounds.
type ContainerIndexMatch struct {
	ContainerBounds geom.Rect             `json:"container_bounds"`
	Index           int                   `json:"relative_index"`
	Column          *container.ColumnInfo `json:"column_info,omitempty"`
}

// DirectCoordinate taps a raw screen point.
type DirectCoordinate struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Source string `json:"source_description"`
}

func (StructuralHierarchy) Kind() Kind   { return KindStructural }
func (RelativePosition) Kind() Kind      { return KindRelative }
func (TextAugmentedPosition) Kind() Kind { return KindTextAugmented }
func (ExactTextMatch) Kind() Kind        { return KindExactText }
func (ContainerIndexMatch) Kind() Kind   { return KindContainerIndex }
func (DirectCoordinate) Kind() Kind      { return KindDirect }

func (m StructuralHierarchy) Reliability() float64 {
	return max(0.9-float64(m.Depth)*0.05, 0.7)
}

func (m RelativePosition) Reliability() float64 {
	switch m.Position {
	case PositionBottomAction, PositionSiblingContext:
		return 0.85
	}
	return 0.75
}

func (TextAugmentedPosition) Reliability() float64 { return 0.80 }
func (m ExactTextMatch) Reliability() float64      { return m.Confidence }
func (ContainerIndexMatch) Reliability() float64   { return 0.70 }
func (DirectCoordinate) Reliability() float64      { return 0.60 }

func (m StructuralHierarchy) Describe() string {
	return fmt.Sprintf("structural hierarchy, depth %d", m.Depth)
}

func (m RelativePosition) Describe() string {
	return "relative position " + m.Position
}

func (m TextAugmentedPosition) Describe() string {
	return fmt.Sprintf("text-augmented position %q", m.Hint)
}

func (m ExactTextMatch) Describe() string {
	return fmt.Sprintf("exact %s %q (confidence %.3f)", m.Source, m.Text, m.Confidence)
}

func (m ContainerIndexMatch) Describe() string {
	if m.Column != nil {
		return fmt.Sprintf("container item %d (%s column)", m.Index, m.Column.Column)
	}
	return fmt.Sprintf("container item %d", m.Index)
}

func (m DirectCoordinate) Describe() string {
	return fmt.Sprintf("tap (%d,%d) from %s", m.X, m.Y, m.Source)
}

func (StructuralHierarchy) clickMode()   {}
func (RelativePosition) clickMode()      {}
func (TextAugmentedPosition) clickMode() {}
func (ExactTextMatch) clickMode()        {}
func (ContainerIndexMatch) clickMode()   {}
func (DirectCoordinate) clickMode()      {}

// NeedsContainer reports whether m is anchored on surrounding structure.
func NeedsContainer(m ClickMode) bool {
	switch m.(type) {
	case StructuralHierarchy, RelativePosition, ContainerIndexMatch:
		return true
	}
	return false
}

// NeedsText reports whether m resolves through on-screen text.
func NeedsText(m ClickMode) bool {
	switch m.(type) {
	case TextAugmentedPosition, ExactTextMatch:
		return true
	}
	return false
}

// Instruction wraps a ClickMode for JSON as {"kind","reliability","params"}.
type Instruction struct {
	Mode ClickMode
}

type instructionJSON struct {
	Kind        Kind            `json:"kind"`
	Reliability float64         `json:"reliability"`
	Params      json.RawMessage `json:"params"`
}

func (in Instruction) MarshalJSON() ([]byte, error) {
	if in.Mode == nil {
		return []byte("null"), nil
	}
	params, err := json.Marshal(in.Mode)
	if err != nil {
		return nil, err
	}
	return json.Marshal(instructionJSON{Kind: in.Mode.Kind(), Reliability: in.Mode.Reliability(), Params: params})
}

func (in *Instruction) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	var raw instructionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var (
		m   ClickMode
		err error
	)
	switch raw.Kind {
	case KindStructural:
		m, err = decode[StructuralHierarchy](raw.Params)
	case KindRelative:
		m, err = decode[RelativePosition](raw.Params)
	case KindTextAugmented:
		m, err = decode[TextAugmentedPosition](raw.Params)
	case KindExactText:
		m, err = decode[ExactTextMatch](raw.Params)
	case KindContainerIndex:
		m, err = decode[ContainerIndexMatch](raw.Params)
	case KindDirect:
		m, err = decode[DirectCoordinate](raw.Params)
	default:
		return fmt.Errorf("bridge: unknown instruction kind %q", raw.Kind)
	}
	if err != nil {
		return fmt.Errorf("bridge: decode %s: %w", raw.Kind, err)
	}
	in.Mode = m
	return nil
}

func decode[T ClickMode](data []byte) (ClickMode, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
