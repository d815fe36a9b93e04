package collapsecheck

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/openbindings/collapsecheck/refs"
)

type verifyOptions struct {
	keywords Keywords
	logger   log.Logger
}

// Option configures Verify.
type Option func(*verifyOptions)

// WithKeywords overrides the annotation names. They should match the
// keywords the documents were parsed with.
func WithKeywords(kw Keywords) Option {
	return func(o *verifyOptions) { o.keywords = kw }
}

// WithLogger makes Verify log each check's outcome at debug level.
func WithLogger(logger log.Logger) Option {
	return func(o *verifyOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Collapse is a definition that absorbed others during collapsing.
type Collapse struct {
	Name     string
	Absorbed []string
}

// Finding is a referenced name together with the definitions referencing it.
type Finding struct {
	Name      string
	Referrers []string
}

// Report is the outcome of all five checks.
type Report struct {
	// Name labels the verified document, usually its file name.
	Name string

	// HasBefore is set when a before document was supplied; Checks 1 and 4
	// only compare counts and names when it is.
	HasBefore   bool
	BeforeCount int
	AfterCount  int
	// Removed is BeforeCount - AfterCount; negative when definitions were added.
	Removed int

	// Collapsed lists annotated definitions, sorted by name.
	Collapsed []Collapse

	// Broken lists reference targets missing from the definitions, sorted.
	Broken []Finding

	// Orphaned lists removed names that are still referenced, sorted.
	Orphaned []Finding

	// CollapsedKey is the annotation name used in Check 5 output.
	CollapsedKey string

	// DeclaredCollapsed is the annotation as written; 0 when absent.
	DeclaredCollapsed CollapseCount
	ActualCollapsed   int

	// Extensions holds the after document's top-level x- members other
	// than the collapse count.
	Extensions map[string]any

	// Errors holds one message per problem, in check order.
	Errors []string
}

// Passed reports whether no check produced an error.
func (r *Report) Passed() bool {
	return len(r.Errors) == 0
}

// Err returns a *VerificationError carrying every problem, or nil.
func (r *Report) Err() error {
	if r.Passed() {
		return nil
	}
	return &VerificationError{Problems: append([]string(nil), r.Errors...)}
}

// VerificationError is a deterministic, multi-problem verification failure.
type VerificationError struct {
	Problems []string
}

func (e *VerificationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "collapse verification failed"
	}
	return "collapse verification failed: " + strings.Join(e.Problems, "; ")
}

// Verify runs the five collapse checks against after, comparing with before
// when it is non-nil. Checks never stop early; every problem is recorded.
func Verify(after, before *Document, opts ...Option) *Report {
	o := verifyOptions{
		keywords: DefaultKeywords(),
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if after == nil {
		after = &Document{Definitions: map[string]any{}}
	}

	r := &Report{
		Name:         filepath.Base(after.Source),
		HasBefore:    before != nil,
		AfterCount:   after.Len(),
		CollapsedKey: o.keywords.Collapsed,
		Extensions:   after.Extensions,
	}
	if after.Source == "" {
		r.Name = "<document>"
	}

	afterNames := after.Names()
	index := refs.NewIndex(o.keywords.RefPrefix)
	for name, def := range after.Definitions {
		index.Add(name, def)
	}

	r.checkCount(before)
	r.checkAnnotations(after, o.keywords.Reduced)
	r.checkBroken(index, afterNames)
	if before != nil {
		r.checkOrphans(index, before.Names().Difference(afterNames))
	}
	r.checkCollapsedCount(after.CollapsedCount())

	level.Debug(o.logger).Log(
		"msg", "collapse verification finished",
		"document", r.Name,
		"definitions", r.AfterCount,
		"refs", index.Targets().Len(),
		"collapsed", r.ActualCollapsed,
		"broken", len(r.Broken),
		"orphaned", len(r.Orphaned),
		"errors", len(r.Errors),
	)
	return r
}

// Check 1.
func (r *Report) checkCount(before *Document) {
	if before == nil {
		return
	}
	r.BeforeCount = before.Len()
	r.Removed = r.BeforeCount - r.AfterCount
	if r.Removed < 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("Def count increased by %d", -r.Removed))
	}
}

// Check 2.
func (r *Report) checkAnnotations(after *Document, reducedKey string) {
	r.Collapsed = []Collapse{}
	for name, def := range after.Definitions {
		obj, ok := def.(map[string]any)
		if !ok {
			continue
		}
		raw, ok := obj[reducedKey]
		if !ok {
			continue
		}
		r.Collapsed = append(r.Collapsed, Collapse{Name: name, Absorbed: absorbedNames(raw)})
	}
	sort.Slice(r.Collapsed, func(i, j int) bool { return r.Collapsed[i].Name < r.Collapsed[j].Name })
	r.ActualCollapsed = len(r.Collapsed)
}

// Check 3.
func (r *Report) checkBroken(index *refs.Index, afterNames refs.Set) {
	r.Broken = findings(index, index.Targets().Difference(afterNames))
	for _, f := range r.Broken {
		r.Errors = append(r.Errors, "Broken $ref: "+f.Name)
	}
}

// Check 4.
func (r *Report) checkOrphans(index *refs.Index, removed refs.Set) {
	r.Orphaned = findings(index, removed.Intersect(index.Targets()))
	for _, f := range r.Orphaned {
		r.Errors = append(r.Errors, "Orphaned target: "+f.Name)
	}
}

// Check 5.
func (r *Report) checkCollapsedCount(declared CollapseCount) {
	r.DeclaredCollapsed = declared
	if !declared.Matches(r.ActualCollapsed) {
		r.Errors = append(r.Errors, fmt.Sprintf("%s mismatch: annotation=%s, actual=%d", r.CollapsedKey, declared, r.ActualCollapsed))
	}
}

func findings(index *refs.Index, names refs.Set) []Finding {
	out := make([]Finding, 0, names.Len())
	for _, name := range names.Sorted() {
		out = append(out, Finding{Name: name, Referrers: index.Referrers(name)})
	}
	return out
}

// absorbedNames renders a provenance annotation verbatim. Lists keep their
// order; any other value is a single item.
func absorbedNames(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{fmt.Sprint(v)}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(it))
	}
	return out
}
