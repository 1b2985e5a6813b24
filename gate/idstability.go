package gate

import (
	"strings"
	"unicode"
)

// TrustThreshold is the minimum stability score for an identifier to be trusted.
const TrustThreshold = 0.6

// IDAssessment grades how likely a resource-id is to survive an app update.
type IDAssessment struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Score            float64 `json:"score"`
	Obfuscated       bool    `json:"obfuscated"`
	Dynamic          bool    `json:"dynamic"`
	GenericContainer bool    `json:"generic_container"`
	Reason           string  `json:"reason"`
	Trust            bool    `json:"trust"`
}

var genericContainerNames = []string{
	"container", "wrapper", "layout", "frame", "root",
	"content", "main", "holder", "parent", "child",
}

var semanticIDWords = []string{
	"btn", "button", "text", "image", "icon", "title", "desc",
	"header", "footer", "nav", "menu", "tab", "list", "item",
	"card", "avatar", "name", "info", "detail", "action",
}

// AnalyzeID scores a resource-id. Penalties multiply: obfuscated ×0.2,
// dynamic ×0.3, generic container ×0.6, then a naming-quality factor.
func AnalyzeID(id string) IDAssessment {
	a := IDAssessment{ID: id}
	if id == "" || id == "NO_ID" {
		a.Reason = "invalid resource-id"
		return a
	}
	name := idName(id)
	a.Name = name

	score := 1.0
	var reasons []string
	if ok, why := obfuscated(name); ok {
		a.Obfuscated = true
		score *= 0.2
		reasons = append(reasons, why)
	}
	if ok, why := dynamicID(name); ok {
		a.Dynamic = true
		score *= 0.3
		reasons = append(reasons, why)
	}
	if ok, why := genericContainer(name); ok {
		a.GenericContainer = true
		score *= 0.6
		reasons = append(reasons, why)
	}
	q, why := namingQuality(name)
	score *= q
	if q < 1 {
		reasons = append(reasons, why)
	}

	a.Score = score
	a.Trust = score >= TrustThreshold
	if len(reasons) == 0 {
		a.Reason = "well-formed semantic id"
	} else {
		a.Reason = strings.Join(reasons, "; ")
	}
	return a
}

func idName(id string) string {
	if i := strings.LastIndex(id, ":id/"); i >= 0 {
		return id[i+len(":id/"):]
	}
	return id
}

func obfuscated(name string) (bool, string) {
	switch {
	case strings.Contains(name, "obfuscated"):
		return true, "id carries an obfuscation marker"
	case strings.HasPrefix(name, "0_") || strings.HasPrefix(name, "1_"):
		return true, "id starts with " + name[:2]
	case looksLikeHash(name):
		return true, "id looks like a hash"
	case len(name) <= 2 && strings.IndexFunc(name, func(r rune) bool { return r < 'a' || r > 'z' }) < 0:
		return true, "id " + name + " is a minified name"
	}
	return false, ""
}

func dynamicID(name string) (bool, string) {
	run := 0
	for _, r := range name {
		if r >= '0' && r <= '9' {
			run++
			if run >= 10 {
				return true, "id contains a timestamp-like digit run"
			}
		} else {
			run = 0
		}
	}
	if strings.Contains(name, "-") && len(name) > 20 && len(strings.Split(name, "-")) >= 4 {
		return true, "id contains a uuid"
	}
	last := name
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		last = name[i+1:]
	}
	if len(last) >= 3 && allDigits(last) {
		return true, "id ends with a generated number " + last
	}
	return false, ""
}

func genericContainer(name string) (bool, string) {
	lower := strings.ToLower(name)
	for _, p := range genericContainerNames {
		if strings.HasSuffix(lower, p) {
			return true, "id is a generic container name (" + p + ")"
		}
	}
	return false, ""
}

func namingQuality(name string) (float64, string) {
	snake := strings.Contains(name, "_") && len(name) > 3
	camel := strings.IndexFunc(name, unicode.IsUpper) >= 0
	if !snake && !camel && len(name) <= 5 {
		return 0.7, "id is short and unstructured"
	}
	lower := strings.ToLower(name)
	for _, w := range semanticIDWords {
		if strings.Contains(lower, w) {
			return 1.0, ""
		}
	}
	return 0.85, "id has no semantic word"
}

func looksLikeHash(s string) bool {
	if len(s) < 16 || strings.Contains(s, "_") {
		return false
	}
	var letters, digits bool
	prevLower := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letters = true
		}
		if prevLower && r >= 'A' && r <= 'Z' {
			return false
		}
		prevLower = r >= 'a' && r <= 'z'
	}
	return letters && digits
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
