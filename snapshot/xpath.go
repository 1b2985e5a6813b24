package snapshot

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// SelectorError reports a selector outside the supported subset.
type SelectorError struct {
	Selector string
	Reason   string
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("snapshot: unsupported selector %q: %s", e.Selector, e.Reason)
}

// Select evaluates a selector and returns matching node indices in document
// order, without duplicates. Supports a practical subset of XPath:
//   - /hierarchy/node[1]/node[3]            absolute path
//   - //node[@resource-id='com.app:id/x']   descendant anywhere
//   - //android.widget.TextView[@text='x']  class name used as tag
//   - //*[contains(@content-desc,'Like')]   substring predicate
//   - //node[@clickable='true' and @text='Follow'][2]
//
// A step tag matches either the element name or the node class.
func (s *Snapshot) Select(selector string) ([]int, error) {
	sel := strings.TrimSpace(selector)
	if sel == "" {
		return nil, &SelectorError{Selector: selector, Reason: "empty"}
	}
	steps, err := parseSelector(sel)
	if err != nil {
		return nil, &SelectorError{Selector: selector, Reason: err.Error()}
	}

	// Virtual document node: its only child is the root element.
	current := []int{NoParent}
	for _, st := range steps {
		var next []int
		seen := map[int]struct{}{}
		for _, ctx := range current {
			var pool []int
			if st.descendant {
				pool = s.descendantsOf(ctx)
			} else {
				pool = s.childrenOf(ctx)
			}
			for _, n := range pool {
				if _, dup := seen[n]; dup {
					continue
				}
				if s.matchesStep(n, st) {
					seen[n] = struct{}{}
					next = append(next, n)
				}
			}
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	slices.Sort(current)
	return current, nil
}

// MustSelect is Select for selectors known to be valid; errors yield no matches.
func (s *Snapshot) MustSelect(selector string) []int {
	out, _ := s.Select(selector)
	return out
}

func (s *Snapshot) childrenOf(i int) []int {
	if i == NoParent {
		if len(s.nodes) == 0 {
			return nil
		}
		return []int{0}
	}
	return s.nodes[i].Children
}

func (s *Snapshot) descendantsOf(i int) []int {
	if i == NoParent {
		out := make([]int, len(s.nodes))
		for k := range out {
			out[k] = k
		}
		return out
	}
	return s.Descendants(i)
}

type selectorStep struct {
	descendant bool
	tag        string
	preds      []predicate
}

type predKind int

const (
	predPosition predKind = iota
	predHasAttr
	predAttrEquals
	predAttrContains
)

type predicate struct {
	kind  predKind
	attr  string
	value string
	pos   int
}

func parseSelector(sel string) ([]selectorStep, error) {
	if !strings.HasPrefix(sel, "/") {
		sel = "//" + sel
	}
	var steps []selectorStep
	i := 0
	for i < len(sel) {
		if sel[i] != '/' {
			return nil, fmt.Errorf("expected '/' at %d", i)
		}
		st := selectorStep{}
		i++
		if i < len(sel) && sel[i] == '/' {
			st.descendant = true
			i++
		}
		start := i
		depth := 0
		quote := byte(0)
		for i < len(sel) {
			c := sel[i]
			if quote != 0 {
				if c == quote {
					quote = 0
				}
				i++
				continue
			}
			if c == '\'' || c == '"' {
				quote = c
			} else if c == '[' {
				depth++
			} else if c == ']' {
				depth--
				if depth < 0 {
					return nil, fmt.Errorf("unbalanced ']' at %d", i)
				}
			} else if c == '/' && depth == 0 {
				break
			}
			i++
		}
		if depth != 0 || quote != 0 {
			return nil, fmt.Errorf("unterminated predicate")
		}
		raw := sel[start:i]
		if raw == "" {
			return nil, fmt.Errorf("empty step at %d", start)
		}
		if err := parseStepInto(raw, &st); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func parseStepInto(raw string, st *selectorStep) error {
	idx := strings.IndexByte(raw, '[')
	if idx < 0 {
		st.tag = raw
		return nil
	}
	st.tag = raw[:idx]
	if st.tag == "" {
		return fmt.Errorf("missing tag in %q", raw)
	}
	rest := raw[idx:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return fmt.Errorf("unexpected %q in step", rest)
		}
		end := closingBracket(rest)
		if end < 0 {
			return fmt.Errorf("unterminated predicate in %q", raw)
		}
		body := strings.TrimSpace(rest[1:end])
		rest = rest[end+1:]
		if n, err := strconv.Atoi(body); err == nil {
			if n < 1 {
				return fmt.Errorf("position must be >= 1")
			}
			st.preds = append(st.preds, predicate{kind: predPosition, pos: n})
			continue
		}
		for _, part := range splitAnd(body) {
			p, err := parsePredicate(strings.TrimSpace(part))
			if err != nil {
				return err
			}
			st.preds = append(st.preds, p)
		}
	}
	return nil
}

func closingBracket(s string) int {
	quote := byte(0)
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

// splitAnd splits on " and " outside of quoted literals.
func splitAnd(body string) []string {
	var out []string
	quote := byte(0)
	start := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if strings.HasPrefix(body[i:], " and ") {
			out = append(out, body[start:i])
			start = i + len(" and ")
			i = start - 1
		}
	}
	return append(out, body[start:])
}

func parsePredicate(p string) (predicate, error) {
	if strings.HasPrefix(p, "contains(") && strings.HasSuffix(p, ")") {
		args := p[len("contains(") : len(p)-1]
		comma := strings.IndexByte(args, ',')
		if comma < 0 {
			return predicate{}, fmt.Errorf("contains() needs two arguments")
		}
		attr := strings.TrimSpace(args[:comma])
		if !strings.HasPrefix(attr, "@") {
			return predicate{}, fmt.Errorf("contains() first argument must be an attribute")
		}
		return predicate{
			kind:  predAttrContains,
			attr:  attr[1:],
			value: unquote(strings.TrimSpace(args[comma+1:])),
		}, nil
	}
	if strings.HasPrefix(p, "@") {
		if eq := strings.IndexByte(p, '='); eq > 0 {
			return predicate{
				kind:  predAttrEquals,
				attr:  strings.TrimSpace(p[1:eq]),
				value: unquote(strings.TrimSpace(p[eq+1:])),
			}, nil
		}
		return predicate{kind: predHasAttr, attr: p[1:]}, nil
	}
	return predicate{}, fmt.Errorf("unsupported predicate %q", p)
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '\'' || v[0] == '"') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func (s *Snapshot) tagMatches(i int, tag string) bool {
	n := &s.nodes[i]
	return tag == "*" || n.Tag == tag || n.Class == tag
}

// matchesStep checks tag and predicates. A positional predicate counts
// among the siblings that match the tag and every predicate before it, so
// [@text='Follow'][2] is the second Follow under its parent.
func (s *Snapshot) matchesStep(i int, st selectorStep) bool {
	return s.tagMatches(i, st.tag) && s.matchesPreds(i, st.tag, st.preds)
}

func (s *Snapshot) matchesPreds(i int, tag string, preds []predicate) bool {
	n := &s.nodes[i]
	for k, p := range preds {
		switch p.kind {
		case predHasAttr:
			if _, ok := n.Attrs[p.attr]; !ok {
				return false
			}
		case predAttrEquals:
			if n.Attrs[p.attr] != p.value {
				return false
			}
		case predAttrContains:
			if !strings.Contains(n.Attrs[p.attr], p.value) {
				return false
			}
		case predPosition:
			if s.siblingPosition(i, tag, preds[:k]) != p.pos {
				return false
			}
		}
	}
	return true
}

func (s *Snapshot) siblingPosition(i int, tag string, before []predicate) int {
	p, ok := s.Parent(i)
	if !ok {
		return 1
	}
	pos := 0
	for _, c := range s.nodes[p].Children {
		if c != i && !(s.tagMatches(c, tag) && s.matchesPreds(c, tag, before)) {
			continue
		}
		pos++
		if c == i {
			return pos
		}
	}
	return 0
}
