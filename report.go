package collapsecheck

import (
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/colorstring"

	"github.com/openbindings/collapsecheck/canonicaljson"
)

// TextOptions configures WriteText.
type TextOptions struct {
	// Color highlights the PASS/FAIL summary with ANSI colours.
	Color bool
}

// WriteText writes the human-readable report: one numbered section per check
// in fixed order, then the PASS or FAIL summary.
func WriteText(w io.Writer, r *Report, opts TextOptions) error {
	p := &printer{w: w}
	colors := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !opts.Color,
		Reset:   true,
	}

	p.printf("=== Collapse verification: %s ===\n\n", r.Name)

	if r.HasBefore {
		p.printf("1. Def count: %d -> %d (%d removed)\n", r.BeforeCount, r.AfterCount, r.Removed)
	} else {
		p.printf("1. Def count: %d (no before-schema for comparison)\n", r.AfterCount)
	}

	p.printf("\n2. Collapsed defs (%d):\n", len(r.Collapsed))
	for _, c := range r.Collapsed {
		p.printf("   %s <- %s\n", c.Name, strings.Join(c.Absorbed, ", "))
	}

	p.printf("\n3. Broken $refs: %d\n", len(r.Broken))
	for _, f := range r.Broken {
		p.printf("   BROKEN: %s%s\n", f.Name, referencedFrom(f.Referrers))
	}

	if r.HasBefore {
		p.printf("\n4. Orphaned targets: %d\n", len(r.Orphaned))
		for _, f := range r.Orphaned {
			p.printf("   ORPHANED: %s%s\n", f.Name, referencedFrom(f.Referrers))
		}
	} else {
		p.printf("\n4. Orphaned targets: (skipped, no before-schema)\n")
	}

	p.printf("\n5. %s: %s (actual: %d)\n", r.CollapsedKey, r.DeclaredCollapsed, r.ActualCollapsed)

	p.printf("\n%s\n", strings.Repeat("=", 50))
	if r.Passed() {
		p.printf("%s: all checks passed\n", colors.Color("[green]PASS"))
		return p.err
	}
	p.printf("%s: %d error(s)\n", colors.Color("[red]FAIL"), len(r.Errors))
	for _, e := range r.Errors {
		p.printf("  - %s\n", e)
	}
	return p.err
}

func referencedFrom(owners []string) string {
	if len(owners) == 0 {
		return ""
	}
	return " (referenced from " + strings.Join(owners, ", ") + ")"
}

// printer remembers the first write error so report sections stay linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

type jsonReport struct {
	Document   string         `json:"document"`
	Passed     bool           `json:"passed"`
	Errors     []string       `json:"errors"`
	Checks     jsonChecks     `json:"checks"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type jsonChecks struct {
	DefinitionCount jsonCount       `json:"definitionCount"`
	Collapsed       []jsonCollapse  `json:"collapsedDefinitions"`
	Broken          []jsonFinding   `json:"brokenRefs"`
	Orphaned        jsonOrphans     `json:"orphanedTargets"`
	CollapsedCount  jsonCollapsedNo `json:"collapsedCount"`
}

type jsonCount struct {
	Skipped bool `json:"skipped"`
	Before  *int `json:"before,omitempty"`
	After   int  `json:"after"`
	Removed *int `json:"removed,omitempty"`
}

type jsonCollapse struct {
	Name     string   `json:"name"`
	Absorbed []string `json:"absorbed"`
}

type jsonFinding struct {
	Name      string   `json:"name"`
	Referrers []string `json:"referrers"`
}

type jsonOrphans struct {
	Skipped bool          `json:"skipped"`
	Targets []jsonFinding `json:"targets"`
}

type jsonCollapsedNo struct {
	Key        string `json:"key"`
	Annotation any    `json:"annotation"`
	Actual     int    `json:"actual"`
}

// WriteJSON writes the report as canonical (RFC 8785) JSON followed by a newline.
// The collapse-count annotation is written as found in the document, and the
// document's top-level x- members are echoed under "extensions".
func WriteJSON(w io.Writer, r *Report) error {
	out := jsonReport{
		Document: r.Name,
		Passed:   r.Passed(),
		Errors:   append([]string{}, r.Errors...),
		Checks: jsonChecks{
			DefinitionCount: jsonCount{Skipped: !r.HasBefore, After: r.AfterCount},
			Collapsed:       make([]jsonCollapse, 0, len(r.Collapsed)),
			Broken:          toJSONFindings(r.Broken),
			Orphaned:        jsonOrphans{Skipped: !r.HasBefore, Targets: toJSONFindings(r.Orphaned)},
			CollapsedCount: jsonCollapsedNo{
				Key:        r.CollapsedKey,
				Annotation: r.DeclaredCollapsed.Raw,
				Actual:     r.ActualCollapsed,
			},
		},
		Extensions: r.Extensions,
	}
	if r.HasBefore {
		before, removed := r.BeforeCount, r.Removed
		out.Checks.DefinitionCount.Before = &before
		out.Checks.DefinitionCount.Removed = &removed
	}
	for _, c := range r.Collapsed {
		out.Checks.Collapsed = append(out.Checks.Collapsed, jsonCollapse{
			Name:     c.Name,
			Absorbed: append([]string{}, c.Absorbed...),
		})
	}
	return canonicaljson.Write(w, out)
}

func toJSONFindings(in []Finding) []jsonFinding {
	out := make([]jsonFinding, 0, len(in))
	for _, f := range in {
		out = append(out, jsonFinding{Name: f.Name, Referrers: append([]string{}, f.Referrers...)})
	}
	return out
}
