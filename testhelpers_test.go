package collapsecheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustDecodeJSON(t *testing.T, s string) any {
	t.Helper()
	v, err := Decode([]byte(s), FormatJSON)
	require.NoError(t, err)
	return v
}

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseDocument(mustDecodeJSON(t, s), DefaultKeywords())
	require.NoError(t, err)
	return doc
}

func mustParseNamed(t *testing.T, source, s string) *Document {
	t.Helper()
	doc := mustParse(t, s)
	doc.Source = source
	return doc
}
