// Package refs collects local definition references from decoded JSON values.
//
// Values are the generic shapes produced by JSON and YAML decoders:
// map[string]any for objects, []any for arrays, and scalars. Only `$ref`
// strings that start with the configured prefix (by default "#/definitions/")
// are references; relative files, URLs and pointers into other locations are
// ignored and never followed.
package refs

import (
	"sort"
	"strings"
)

// Key is the reserved reference keyword.
const Key = "$ref"

// DefaultPrefix points into the document's "definitions" mapping.
const DefaultPrefix = "#/definitions/"

// Target returns the definition name a $ref value points at.
// ok is false when v is not a string or does not start with prefix.
func Target(v any, prefix string) (name string, ok bool) {
	s, isString := v.(string)
	if !isString || !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

// Collect adds every reference target found anywhere in v to acc.
//
// Objects are descended into value by value, arrays element by element.
// A matching `$ref` is recorded and not descended into; a `$ref` holding an
// object or array is walked like any other value.
func Collect(v any, prefix string, acc Set) {
	walk(v, prefix, func(name string) { acc.Add(name) })
}

func walk(v any, prefix string, visit func(string)) {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			if k == Key {
				if name, ok := Target(child, prefix); ok {
					visit(name)
					continue
				}
			}
			// Non-matching strings fall through as scalars.
			walk(child, prefix, visit)
		}
	case []any:
		for _, child := range x {
			walk(child, prefix, visit)
		}
	}
}

// Index records reference targets together with the definitions that
// contain the referencing sites.
type Index struct {
	prefix  string
	targets Set
	from    map[string]Set
}

// NewIndex returns an empty Index matching references with prefix.
func NewIndex(prefix string) *Index {
	return &Index{
		prefix:  prefix,
		targets: Set{},
		from:    map[string]Set{},
	}
}

// Add collects the references in v, attributing them to owner.
func (ix *Index) Add(owner string, v any) {
	walk(v, ix.prefix, func(name string) {
		ix.targets.Add(name)
		s, ok := ix.from[name]
		if !ok {
			s = Set{}
			ix.from[name] = s
		}
		s.Add(owner)
	})
}

// Targets returns the set of all referenced names. The caller must not modify it.
func (ix *Index) Targets() Set {
	return ix.targets
}

// Referrers returns the owners that reference name, sorted.
func (ix *Index) Referrers(name string) []string {
	return ix.from[name].Sorted()
}

// Set is an unordered set of names.
type Set map[string]struct{}

// NewSet returns a Set holding names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts name.
func (s Set) Add(name string) { s[name] = struct{}{} }

// Has reports whether name is a member.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Sorted returns the members in lexicographic order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Difference returns the members of s that are not in o.
func (s Set) Difference(o Set) Set {
	out := Set{}
	for k := range s {
		if !o.Has(k) {
			out.Add(k)
		}
	}
	return out
}

// Intersect returns the members present in both s and o.
func (s Set) Intersect(o Set) Set {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	out := Set{}
	for k := range small {
		if large.Has(k) {
			out.Add(k)
		}
	}
	return out
}
