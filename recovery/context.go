package recovery

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/uianchor/geom"
)

// Strategy names reported by Context.Strategy.
const (
	StrategyXPath       = "xpath_then_similarity"
	StrategyTextAndID   = "text_and_resource_id"
	StrategyText        = "text_matching"
	StrategyContentDesc = "content_desc_matching"
	StrategyUnknown     = "unknown_strategy"
)

// ErrNoOriginal is returned when the params carry no original dump.
var ErrNoOriginal = errors.New("recovery: params carry no original_xml")

// Context is what was recorded when the step was authored: the original
// dump and the identifying attributes of the element chosen in it.
type Context struct {
	OriginalXML   string          `json:"original_xml"`
	SelectedXPath string          `json:"selected_xpath,omitempty"`
	Text          string          `json:"text,omitempty"`
	ResourceID    string          `json:"resource_id,omitempty"`
	Desc          string          `json:"content_desc,omitempty"`
	Bounds        *geom.Rect      `json:"bounds,omitempty"`
	ChildrenTexts []string        `json:"children_texts,omitempty"`
	SiblingTexts  []string        `json:"sibling_texts,omitempty"`
	ParentInfo    json.RawMessage `json:"parent_info,omitempty"`
	StrategyType  string          `json:"strategy_type,omitempty"`
}

// Strategy names the recovery route the recorded data allows, most
// specific first.
func (c Context) Strategy() string {
	switch {
	case c.SelectedXPath != "":
		return StrategyXPath
	case c.Text != "" && c.ResourceID != "":
		return StrategyTextAndID
	case c.Text != "":
		return StrategyText
	case c.Desc != "":
		return StrategyContentDesc
	}
	return StrategyUnknown
}

type keyAttributes struct {
	Text       string `json:"text"`
	ResourceID string `json:"resource-id"`
	Desc       string `json:"content-desc"`
	Bounds     string `json:"bounds"`
}

type originalData struct {
	OriginalXML   string          `json:"original_xml"`
	SelectedXPath string          `json:"selected_xpath"`
	ElementText   string          `json:"element_text"`
	ElementBounds string          `json:"element_bounds"`
	ChildrenTexts []string        `json:"children_texts"`
	SiblingTexts  []string        `json:"sibling_texts"`
	ParentInfo    json.RawMessage `json:"parent_info"`
	KeyAttributes *keyAttributes  `json:"key_attributes"`
}

type params struct {
	OriginalData  *originalData  `json:"original_data"`
	KeyAttributes *keyAttributes `json:"key_attributes"`
	StrategyType  string         `json:"strategy_type"`
}

// ContextFromParams decodes a step's params blob. key_attributes may sit
// inside original_data or next to it; explicit element_text and
// element_bounds win over key_attributes.
func ContextFromParams(raw []byte) (Context, error) {
	var p params
	if err := json.Unmarshal(raw, &p); err != nil {
		return Context{}, fmt.Errorf("recovery: decode params: %w", err)
	}
	if p.OriginalData == nil || p.OriginalData.OriginalXML == "" {
		return Context{}, ErrNoOriginal
	}
	od := p.OriginalData
	c := Context{
		OriginalXML:   od.OriginalXML,
		SelectedXPath: od.SelectedXPath,
		Text:          od.ElementText,
		ChildrenTexts: od.ChildrenTexts,
		SiblingTexts:  od.SiblingTexts,
		ParentInfo:    od.ParentInfo,
		StrategyType:  p.StrategyType,
	}
	ka := od.KeyAttributes
	if ka == nil {
		ka = p.KeyAttributes
	}
	bounds := od.ElementBounds
	if ka != nil {
		if c.Text == "" {
			c.Text = ka.Text
		}
		c.ResourceID = ka.ResourceID
		c.Desc = ka.Desc
		if bounds == "" {
			bounds = ka.Bounds
		}
	}
	if bounds != "" {
		r, err := geom.ParseRect(bounds)
		if err != nil {
			return Context{}, fmt.Errorf("recovery: element bounds: %w", err)
		}
		c.Bounds = &r
	}
	if c.StrategyType == "" {
		c.StrategyType = "unknown"
	}
	return c, nil
}
