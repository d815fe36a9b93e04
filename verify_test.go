package collapsecheck

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_ScenarioA_CollapsedWithoutBefore(t *testing.T) {
	after := mustParse(t, `{"definitions": {"X": {}, "Y": {"x-netex-reduced": ["Z"]}}, "x-netex-collapsed": 1}`)

	r := Verify(after, nil)

	assert.False(t, r.HasBefore)
	assert.Equal(t, []Collapse{{Name: "Y", Absorbed: []string{"Z"}}}, r.Collapsed)
	assert.Equal(t, 1, r.DeclaredCollapsed.Value)
	assert.Equal(t, 1, r.ActualCollapsed)
	assert.Empty(t, r.Errors)
	assert.True(t, r.Passed())
	assert.NoError(t, r.Err())
}

func TestVerify_ScenarioB_BrokenRef(t *testing.T) {
	after := mustParse(t, `{"definitions": {
		"A": {"properties": {"m": {"$ref": "#/definitions/Missing"}}}
	}}`)

	r := Verify(after, nil)

	assert.Equal(t, []Finding{{Name: "Missing", Referrers: []string{"A"}}}, r.Broken)
	assert.Equal(t, []string{"Broken $ref: Missing"}, r.Errors)
	assert.False(t, r.Passed())

	var verr *VerificationError
	require.ErrorAs(t, r.Err(), &verr)
	assert.Equal(t, []string{"Broken $ref: Missing"}, verr.Problems)
}

func TestVerify_ScenarioC_OrphanedTarget(t *testing.T) {
	before := mustParse(t, `{"definitions": {"A": {}, "B": {}}}`)
	after := mustParse(t, `{"definitions": {
		"A": {"x-netex-reduced": ["B"], "items": {"$ref": "#/definitions/B"}}
	}, "x-netex-collapsed": 1}`)

	r := Verify(after, before)

	assert.True(t, r.HasBefore)
	assert.Equal(t, 2, r.BeforeCount)
	assert.Equal(t, 1, r.AfterCount)
	assert.Equal(t, 1, r.Removed)
	assert.Equal(t, []Finding{{Name: "B", Referrers: []string{"A"}}}, r.Orphaned)
	// A removed name that is still referenced is also missing from after.
	assert.Equal(t, []string{"Broken $ref: B", "Orphaned target: B"}, r.Errors)
	assert.False(t, r.Passed())
}

func TestVerify_ScenarioD_Empty(t *testing.T) {
	after := mustParse(t, `{"definitions": {}, "x-netex-collapsed": 0}`)

	r := Verify(after, nil)

	assert.Zero(t, r.AfterCount)
	assert.Empty(t, r.Collapsed)
	assert.Empty(t, r.Broken)
	assert.Empty(t, r.Orphaned)
	assert.True(t, r.Passed())
}

func TestVerify_CountIncreaseIsOneError(t *testing.T) {
	before := mustParse(t, `{"definitions": {"A": {}}}`)
	after := mustParse(t, `{"definitions": {"A": {}, "B": {}, "C": {}}}`)

	r := Verify(after, before)

	assert.Equal(t, -2, r.Removed)
	assert.Equal(t, []string{"Def count increased by 2"}, r.Errors)
}

func TestVerify_NoRefsMeansNoBroken(t *testing.T) {
	after := mustParse(t, `{"definitions": {
		"A": {"type": "object", "properties": {"x": {"type": "string"}}},
		"B": [1, 2, {"ref": "#/definitions/Nope"}],
		"C": "scalar"
	}}`)

	r := Verify(after, nil)

	assert.Empty(t, r.Broken)
	assert.True(t, r.Passed())
}

func TestVerify_ForeignRefsAreNotBroken(t *testing.T) {
	after := mustParse(t, `{"definitions": {
		"A": {"allOf": [
			{"$ref": "common.json#/definitions/Base"},
			{"$ref": "https://example.com/x.json"},
			{"$ref": "#/properties/id"}
		]}
	}}`)

	assert.Empty(t, Verify(after, nil).Broken)
}

func TestVerify_RefsOutsideDefinitionsAreIgnored(t *testing.T) {
	after := mustParse(t, `{
		"properties": {"root": {"$ref": "#/definitions/TopLevelOnly"}},
		"definitions": {"A": {}}
	}`)

	assert.True(t, Verify(after, nil).Passed())
}

func TestVerify_BrokenAndOrphanedAreSorted(t *testing.T) {
	before := mustParse(t, `{"definitions": {"K": {}, "Zeta": {}, "Alpha": {}, "Mid": {}}}`)
	after := mustParse(t, `{"definitions": {
		"K": {"anyOf": [
			{"$ref": "#/definitions/Zeta"},
			{"$ref": "#/definitions/Alpha"},
			{"$ref": "#/definitions/Mid"},
			{"$ref": "#/definitions/Never"}
		]},
		"L": {"$ref": "#/definitions/Alpha"}
	}}`)

	r := Verify(after, before)

	names := func(fs []Finding) []string {
		out := make([]string, 0, len(fs))
		for _, f := range fs {
			out = append(out, f.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Alpha", "Mid", "Never", "Zeta"}, names(r.Broken))
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, names(r.Orphaned))
	assert.Equal(t, []string{"K", "L"}, r.Orphaned[0].Referrers)
	assert.Len(t, r.Errors, 7)
}

func TestVerify_OrphanRoundTrip(t *testing.T) {
	before := mustParse(t, `{"definitions": {"A": {}, "B": {}}}`)
	clean := mustParse(t, `{"definitions": {"A": {"x-netex-reduced": ["B"]}}, "x-netex-collapsed": 1}`)
	require.True(t, Verify(clean, before).Passed())

	dangling := mustParse(t, `{"definitions": {
		"A": {"x-netex-reduced": ["B"], "properties": {"b": {"$ref": "#/definitions/B"}}}
	}, "x-netex-collapsed": 1}`)
	r := Verify(dangling, before)

	require.Len(t, r.Orphaned, 1)
	assert.Equal(t, "B", r.Orphaned[0].Name)
	orphanErrors := 0
	for _, e := range r.Errors {
		if e == "Orphaned target: B" {
			orphanErrors++
		}
	}
	assert.Equal(t, 1, orphanErrors)
}

func TestVerify_CollapsedCountMismatch(t *testing.T) {
	for _, tc := range []struct {
		doc      string
		declared int
		actual   int
	}{
		{`{"definitions": {"A": {"x-netex-reduced": ["B"]}}}`, 0, 1},
		{`{"definitions": {"A": {}}, "x-netex-collapsed": 2}`, 2, 0},
		{`{"definitions": {"A": {"x-netex-reduced": []}, "B": {"x-netex-reduced": "C"}}, "x-netex-collapsed": 1}`, 1, 2},
	} {
		r := Verify(mustParse(t, tc.doc), nil)
		assert.Equal(t, tc.declared, r.DeclaredCollapsed.Value)
		assert.Equal(t, tc.actual, r.ActualCollapsed)
		assert.Equal(t, []string{fmt.Sprintf("x-netex-collapsed mismatch: annotation=%d, actual=%d", tc.declared, tc.actual)}, r.Errors)
	}
}

func TestVerify_NonIntegerCollapsedCountIsMismatch(t *testing.T) {
	for annotation, want := range map[string]string{
		`-1`:      "-1",
		`1.5`:     "1.5",
		`"1"`:     `"1"`,
		`true`:    "true",
		`null`:    "null",
		`[1]`:     "[1]",
		`1e40`:    "1e40",
		`{"n":1}`: `{"n":1}`,
	} {
		t.Run(annotation, func(t *testing.T) {
			after := mustParse(t, `{"definitions": {"A": {"x-netex-reduced": ["B"]}}, "x-netex-collapsed": `+annotation+`}`)

			r := Verify(after, nil)

			assert.False(t, r.DeclaredCollapsed.Valid)
			assert.Equal(t, []string{"x-netex-collapsed mismatch: annotation=" + want + ", actual=1"}, r.Errors)
		})
	}
}

func TestVerify_IntegralFloatCollapsedCountMatches(t *testing.T) {
	r := Verify(mustParse(t, `{"definitions": {"A": {"x-netex-reduced": ["B"]}}, "x-netex-collapsed": 1.0}`), nil)

	assert.True(t, r.Passed(), "errors: %v", r.Errors)
	assert.Equal(t, "1.0", r.DeclaredCollapsed.String())
}

func TestVerify_CarriesExtensions(t *testing.T) {
	r := Verify(mustParse(t, `{"definitions": {}, "x-netex-source": "NeTEx 1.2", "x-netex-collapsed": 0, "title": "t"}`), nil)

	assert.Equal(t, map[string]any{"x-netex-source": "NeTEx 1.2"}, r.Extensions)
}

func TestVerify_AnnotationOnlyCountsObjects(t *testing.T) {
	after := mustParse(t, `{"definitions": {
		"A": ["x-netex-reduced"],
		"B": "x-netex-reduced",
		"C": {"x-netex-reduced": null}
	}, "x-netex-collapsed": 1}`)

	r := Verify(after, nil)

	assert.Equal(t, []Collapse{{Name: "C", Absorbed: []string{"<nil>"}}}, r.Collapsed)
	assert.True(t, r.Passed())
}

func TestVerify_AbsorbedPrintedVerbatim(t *testing.T) {
	after := mustParse(t, `{"definitions": {
		"A": {"x-netex-reduced": ["Z", "B", 7]}
	}, "x-netex-collapsed": 1}`)

	r := Verify(after, nil)

	require.Len(t, r.Collapsed, 1)
	assert.Equal(t, []string{"Z", "B", "7"}, r.Collapsed[0].Absorbed)
}

func TestVerify_Idempotent(t *testing.T) {
	before := mustParse(t, `{"definitions": {"A": {}, "B": {}, "C": {}}}`)
	after := mustParseNamed(t, "after.json", `{"definitions": {
		"A": {"x-netex-reduced": ["B", "C"], "$ref": "#/definitions/C"},
		"D": {"$ref": "#/definitions/Gone"}
	}, "x-netex-collapsed": 2}`)

	first := Verify(after, before)
	second := Verify(after, before)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("reports differ (-first +second):\n%s", diff)
	}

	var a, b bytes.Buffer
	require.NoError(t, WriteText(&a, first, TextOptions{}))
	require.NoError(t, WriteText(&b, second, TextOptions{}))
	assert.Equal(t, a.String(), b.String())
}

func TestVerify_CustomKeywords(t *testing.T) {
	kw := Keywords{
		Definitions: "$defs",
		RefPrefix:   "#/$defs/",
		Reduced:     "x-merged",
		Collapsed:   "x-merged-count",
	}
	root := mustDecodeJSON(t, `{"$defs": {
		"A": {"x-merged": ["B"]},
		"C": {"$ref": "#/$defs/A"},
		"D": {"$ref": "#/definitions/Ignored"}
	}, "x-merged-count": 1}`)
	after, err := ParseDocument(root, kw)
	require.NoError(t, err)

	r := Verify(after, nil, WithKeywords(kw))

	assert.True(t, r.Passed(), "errors: %v", r.Errors)
	assert.Equal(t, "x-merged-count", r.CollapsedKey)
	assert.Equal(t, 1, r.ActualCollapsed)
}

func TestVerify_LogsOutcome(t *testing.T) {
	var logs bytes.Buffer
	after := mustParseNamed(t, "/tmp/out/after.json", `{"definitions": {"A": {"$ref": "#/definitions/B"}}}`)

	r := Verify(after, nil, WithLogger(log.NewLogfmtLogger(&logs)), nil)

	assert.Equal(t, "after.json", r.Name)
	assert.Contains(t, logs.String(), "document=after.json")
	assert.Contains(t, logs.String(), "broken=1")
}

func TestVerify_NilAfter(t *testing.T) {
	r := Verify(nil, nil)
	assert.Equal(t, "<document>", r.Name)
	assert.True(t, r.Passed())
}

func TestVerificationError_Message(t *testing.T) {
	err := &VerificationError{Problems: []string{"a", "b"}}
	assert.Equal(t, "collapse verification failed: a; b", err.Error())
	assert.Equal(t, "collapse verification failed", (&VerificationError{}).Error())
}
