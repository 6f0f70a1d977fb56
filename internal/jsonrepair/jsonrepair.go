// Package jsonrepair recovers a JSON object from free-form model replies.
package jsonrepair

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/titanous/json5"
	"go.uber.org/zap"
)

// Transform rewrites a candidate JSON string before the next parse attempt.
type Transform struct {
	Name  string
	Apply func(string) string
}

var newlineReplacer = strings.NewReplacer(`\n`, " ", "\r\n", " ", "\n", " ")

// DefaultTransforms are applied cumulatively, in order, after a strict
// parse fails.
var DefaultTransforms = []Transform{
	{Name: "quotes", Apply: func(s string) string { return strings.ReplaceAll(s, "'", `"`) }},
	{Name: "newlines", Apply: newlineReplacer.Replace},
}

var fenceReplacer = strings.NewReplacer("```json", "", "```", "")

// Parser extracts the outermost object from a reply.
type Parser struct {
	// Transforms defaults to DefaultTransforms when nil.
	Transforms []Transform

	// Lenient enables a final JSON5 parse of the transformed candidate.
	Lenient bool
}

// Parse is a convenience for a default Parser.
func Parse(reply string) (map[string]any, bool) {
	return (&Parser{}).Parse(reply)
}

// Parse slices reply between the first '{' and the last '}', strips code
// fences, and attempts a strict parse followed by each transform. It returns
// false when nothing parses.
func (p *Parser) Parse(reply string) (map[string]any, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end == -1 || end < start {
		return nil, false
	}

	candidate := strings.TrimSpace(fenceReplacer.Replace(reply[start : end+1]))
	if obj, ok := decode(candidate); ok {
		return obj, true
	}

	transforms := p.Transforms
	if transforms == nil {
		transforms = DefaultTransforms
	}
	for _, t := range transforms {
		candidate = t.Apply(candidate)
		if obj, ok := decode(candidate); ok {
			zap.L().Debug("jsonrepair: recovered reply", zap.String("transform", t.Name))
			return obj, true
		}
	}

	if p.Lenient {
		var obj map[string]any
		if err := json5.Unmarshal([]byte(candidate), &obj); err == nil && obj != nil {
			zap.L().Debug("jsonrepair: recovered reply", zap.String("transform", "json5"))
			return obj, true
		}
	}
	return nil, false
}

func decode(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// Blank reports whether a decoded value carries no information: null, false,
// zero, an empty string or collection, or the literal string "null".
func Blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == "" || t == "null"
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// EmptySignal reports whether every value of obj is blank. A nil or empty
// object is an empty signal.
func EmptySignal(obj map[string]any) bool {
	for _, v := range obj {
		if !Blank(v) {
			return false
		}
	}
	return true
}

// Stringify renders a decoded value as a stored value string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
