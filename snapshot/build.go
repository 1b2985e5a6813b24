package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/hazyhaar/uianchor/geom"
)

// ParseError reports a dump that could not be indexed. No partial tree is
// ever returned alongside it.
type ParseError struct {
	Offset int64
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snapshot: parse error at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("snapshot: parse error at offset %d: %s", e.Offset, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Build parses a raw dump into a Snapshot.
func Build(raw string) (*Snapshot, error) {
	return BuildBytes([]byte(raw))
}

// BuildBytes is Build over a byte slice.
func BuildBytes(raw []byte) (*Snapshot, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ParseError{Reason: "empty dump"}
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = true

	s := &Snapshot{
		byPath:       map[string]int{},
		byResourceID: map[string][]int{},
		byClass:      map[string][]int{},
		byText:       map[string][]int{},
		byDesc:       map[string][]int{},
	}

	var stack []int
	rootSeen := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Offset: dec.InputOffset(), Reason: "malformed markup", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 {
				if rootSeen {
					return nil, &ParseError{Offset: dec.InputOffset(), Reason: "multiple root elements"}
				}
				rootSeen = true
			}
			parent := NoParent
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			idx, err := s.appendNode(t, parent)
			if err != nil {
				return nil, &ParseError{Offset: dec.InputOffset(), Reason: "invalid bounds", Err: err}
			}
			stack = append(stack, idx)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 && len(bytes.TrimSpace(t)) > 0 {
				return nil, &ParseError{Offset: dec.InputOffset(), Reason: "text outside root element"}
			}
		}
	}

	if !rootSeen {
		return nil, &ParseError{Offset: dec.InputOffset(), Reason: "no root element"}
	}
	if len(stack) != 0 {
		return nil, &ParseError{Offset: dec.InputOffset(), Reason: "unclosed element"}
	}

	sum := sha256.Sum256(raw)
	s.hash = hex.EncodeToString(sum[:])
	s.screen = inferScreen(s)
	return s, nil
}

func (s *Snapshot) appendNode(el xml.StartElement, parent int) (int, error) {
	idx := len(s.nodes)
	n := Node{
		Index:   idx,
		Tag:     el.Name.Local,
		Parent:  parent,
		Enabled: true,
		Attrs:   make(map[string]string, len(el.Attr)),
	}
	for _, a := range el.Attr {
		n.Attrs[a.Name.Local] = a.Value
		switch a.Name.Local {
		case "class":
			n.Class = a.Value
		case "text":
			n.Text = a.Value
		case "content-desc":
			n.Desc = a.Value
		case "resource-id":
			n.ResourceID = a.Value
		case "package":
			n.Package = a.Value
		case "clickable":
			n.Clickable = parseBool(a.Value)
		case "enabled":
			n.Enabled = parseBool(a.Value)
		case "scrollable":
			n.Scrollable = parseBool(a.Value)
		case "bounds":
			r, err := geom.ParseRect(a.Value)
			if err != nil {
				return 0, err
			}
			n.Bounds = r
		}
	}

	if parent == NoParent {
		n.Step = n.Tag
		n.Path = "/" + n.Tag
	} else {
		p := &s.nodes[parent]
		pos := 1
		for _, c := range p.Children {
			if s.nodes[c].Tag == n.Tag {
				pos++
			}
		}
		n.Step = n.Tag + "[" + strconv.Itoa(pos) + "]"
		n.Path = p.Path + "/" + n.Step
		n.Depth = p.Depth + 1
		p.Children = append(p.Children, idx)
	}

	s.nodes = append(s.nodes, n)
	s.byPath[n.Path] = idx
	if n.ResourceID != "" {
		s.byResourceID[n.ResourceID] = append(s.byResourceID[n.ResourceID], idx)
	}
	if n.Class != "" {
		s.byClass[n.Class] = append(s.byClass[n.Class], idx)
	}
	if n.Text != "" {
		s.byText[n.Text] = append(s.byText[n.Text], idx)
	}
	if n.Desc != "" {
		s.byDesc[n.Desc] = append(s.byDesc[n.Desc], idx)
	}
	return idx, nil
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

// inferScreen takes the union of the root's and its children's bounds. Dumps
// rarely carry bounds on the <hierarchy> element itself.
func inferScreen(s *Snapshot) geom.Rect {
	var scr geom.Rect
	grow := func(r geom.Rect) {
		if r.Empty() {
			return
		}
		if scr.Empty() {
			scr = r
			return
		}
		scr.Left = min(scr.Left, r.Left)
		scr.Top = min(scr.Top, r.Top)
		scr.Right = max(scr.Right, r.Right)
		scr.Bottom = max(scr.Bottom, r.Bottom)
	}
	grow(s.nodes[0].Bounds)
	for _, c := range s.nodes[0].Children {
		grow(s.nodes[c].Bounds)
	}
	return scr
}
