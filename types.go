package collapsecheck

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/openbindings/collapsecheck/canonicaljson"
	"github.com/openbindings/collapsecheck/refs"
)

// Document is a schema document as seen by the verifier.
//
// Definition entries are kept as decoded values (map[string]any, []any and
// scalars) so references can be collected from any nesting depth.
type Document struct {
	// Source is the location the document was read from, if any.
	Source string

	// Definitions is the definitions mapping. It is never nil after parsing.
	Definitions map[string]any

	// Collapsed is the top-level collapse-count annotation; nil when absent.
	Collapsed *CollapseCount

	// LosslessFields keeps the remaining top-level members. Extensions are
	// echoed in the JSON report.
	LosslessFields
}

// CollapseCount is the collapse-count annotation as written in the document.
// Any value is accepted; one that is not a non-negative integer never matches
// the actual count.
type CollapseCount struct {
	// Raw is the decoded value.
	Raw any
	// Value is the count. Only meaningful when Valid.
	Value int
	// Valid is set when Raw is a non-negative integer.
	Valid bool
}

// NewCollapseCount wraps a decoded annotation value.
func NewCollapseCount(raw any) CollapseCount {
	n, err := nonNegativeInt(raw)
	if err != nil {
		return CollapseCount{Raw: raw}
	}
	return CollapseCount{Raw: raw, Value: n, Valid: true}
}

// Matches reports whether the annotation equals actual.
func (c CollapseCount) Matches(actual int) bool {
	return c.Valid && c.Value == actual
}

// String renders the annotation as written: numbers verbatim, everything
// else as canonical JSON.
func (c CollapseCount) String() string {
	switch x := c.Raw.(type) {
	case json.Number:
		return string(x)
	case int:
		return strconv.Itoa(x)
	}
	b, err := canonicaljson.Marshal(c.Raw)
	if err != nil {
		return fmt.Sprint(c.Raw)
	}
	return string(b)
}

// ParseDocument builds a Document from a decoded JSON or YAML value.
//
// root must be an object. A missing definitions mapping is treated as empty;
// a definitions member that is not an object makes the document malformed.
// The collapse count is kept whatever its value and judged by Verify.
func ParseDocument(root any, kw Keywords) (*Document, error) {
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document root must be an object, got %s", kindOf(root))
	}

	doc := &Document{Definitions: map[string]any{}}

	if raw, ok := obj[kw.Definitions]; ok {
		defs, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: must be an object, got %s", kw.Definitions, kindOf(raw))
		}
		doc.Definitions = defs
	}

	if raw, ok := obj[kw.Collapsed]; ok {
		c := NewCollapseCount(raw)
		doc.Collapsed = &c
	}

	doc.Extensions, doc.Unknown = splitLossless(obj, knownSet(kw.Definitions, kw.Collapsed))
	return doc, nil
}

// Len returns the number of definitions. A nil Document has none.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Definitions)
}

// Names returns the set of definition names.
func (d *Document) Names() refs.Set {
	if d == nil {
		return refs.Set{}
	}
	s := make(refs.Set, len(d.Definitions))
	for name := range d.Definitions {
		s.Add(name)
	}
	return s
}

// CollapsedCount returns the collapse-count annotation. An absent
// annotation reads as 0.
func (d *Document) CollapsedCount() CollapseCount {
	if d == nil || d.Collapsed == nil {
		return CollapseCount{Raw: 0, Valid: true}
	}
	return *d.Collapsed
}

func nonNegativeInt(v any) (int, error) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return checkRange(i)
		}
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", string(x))
		}
		f = parsed
	case float64:
		f = x
	case int:
		return checkRange(int64(x))
	case int64:
		return checkRange(x)
	case uint64:
		if x > math.MaxInt32 {
			return 0, fmt.Errorf("out of range: %d", x)
		}
		return int(x), nil
	default:
		return 0, fmt.Errorf("must be a non-negative integer, got %s", kindOf(v))
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("must be an integer, got %v", f)
	}
	if math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return checkRange(int64(f))
}

func checkRange(i int64) (int, error) {
	if i < 0 {
		return 0, fmt.Errorf("must be non-negative, got %d", i)
	}
	if i > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %d", i)
	}
	return int(i), nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64, uint64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
