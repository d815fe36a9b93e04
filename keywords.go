package collapsecheck

import (
	"fmt"
	"strings"

	"github.com/openbindings/collapsecheck/refs"
)

// Keywords names the document locations the verifier reads.
// The zero value is not usable; start from DefaultKeywords.
type Keywords struct {
	// Definitions is the top-level key holding the definitions mapping.
	Definitions string
	// RefPrefix is the $ref prefix that points into the definitions mapping.
	RefPrefix string
	// Reduced is the per-definition provenance annotation.
	Reduced string
	// Collapsed is the top-level collapse-count annotation.
	Collapsed string
}

// DefaultKeywords returns the keywords written by the collapseTransparent pass.
func DefaultKeywords() Keywords {
	return Keywords{
		Definitions: "definitions",
		RefPrefix:   refs.DefaultPrefix,
		Reduced:     "x-netex-reduced",
		Collapsed:   "x-netex-collapsed",
	}
}

// Validate reports empty or conflicting keywords.
func (k Keywords) Validate() error {
	var problems []string
	for _, f := range []struct{ name, value string }{
		{"definitions", k.Definitions},
		{"ref prefix", k.RefPrefix},
		{"reduced", k.Reduced},
		{"collapsed", k.Collapsed},
	} {
		if strings.TrimSpace(f.value) == "" {
			problems = append(problems, fmt.Sprintf("%s: required", f.name))
		}
	}
	if k.Definitions != "" && k.Definitions == k.Collapsed {
		problems = append(problems, fmt.Sprintf("collapsed: must differ from definitions key %q", k.Definitions))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid keywords: %s", strings.Join(problems, "; "))
}
