package tree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ObjectWithScalars(t *testing.T) {
	v, err := Parse([]byte(`{"alias": null, "args": null, "kind": "ScalarField", "name": "id", "storageKey": null}`))
	require.NoError(t, err)
	require.Equal(t, Object, v.Kind)
	require.Len(t, v.Entries, 5)
	assert.Equal(t, "alias", v.Entries[0].Key)
	assert.Equal(t, Null, v.Entries[0].Val.Kind)
	assert.Equal(t, "kind", v.Entries[2].Key)
	assert.Equal(t, String, v.Entries[2].Val.Kind)
	assert.Equal(t, "ScalarField", v.Entries[2].Val.Text)
}

func TestParse_BarewordKeys(t *testing.T) {
	v, err := Parse([]byte(`{kind: "Fragment", metadata: null}`))
	require.NoError(t, err)
	require.Len(t, v.Entries, 2)
	assert.Equal(t, "kind", v.Entries[0].Key)
	assert.Equal(t, "metadata", v.Entries[1].Key)
}

func TestParse_NumbersKeepLexeme(t *testing.T) {
	v, err := Parse([]byte(`[0, -1, 3.14, 1e10, 2.5E-3, 100.0]`))
	require.NoError(t, err)
	require.Equal(t, Array, v.Kind)
	lexemes := make([]string, len(v.Elems))
	for i, e := range v.Elems {
		require.Equal(t, Number, e.Kind)
		lexemes[i] = e.Text
	}
	assert.Equal(t, []string{"0", "-1", "3.14", "1e10", "2.5E-3", "100.0"}, lexemes)
}

func TestParse_StringEscapes(t *testing.T) {
	v, err := Parse([]byte(`{"storageKey": "node(id:\"4\")\n\tA"}`))
	require.NoError(t, err)
	assert.Equal(t, "node(id:\"4\")\n\tA", v.Entries[0].Val.Text)
}

func TestParse_TrailingCommas(t *testing.T) {
	v, err := Parse([]byte(`{"a": [1, 2,], "b": {"c": true,},}`))
	require.NoError(t, err)
	require.Len(t, v.Entries, 2)
	assert.Len(t, v.Entries[0].Val.Elems, 2)
}

func TestParse_BoolsAndNull(t *testing.T) {
	v, err := Parse([]byte(`[true, false, null]`))
	require.NoError(t, err)
	assert.Equal(t, Bool, v.Elems[0].Kind)
	assert.True(t, v.Elems[0].Bool)
	assert.Equal(t, Bool, v.Elems[1].Kind)
	assert.False(t, v.Elems[1].Bool)
	assert.Equal(t, Null, v.Elems[2].Kind)
}

func TestParse_BarewordValueIsReference(t *testing.T) {
	// A rewritten file round-trips: allocated names parse back as references.
	v, err := Parse([]byte(`{"selections": [x_a1b, x_ffe2], "fragment": _d41d8cd9}`))
	require.NoError(t, err)
	sel := v.Entries[0].Val
	require.Equal(t, Array, sel.Kind)
	assert.Equal(t, Reference, sel.Elems[0].Kind)
	assert.Equal(t, "x_a1b", sel.Elems[0].Text)
	assert.Equal(t, Reference, v.Entries[1].Val.Kind)
	assert.Equal(t, "_d41d8cd9", v.Entries[1].Val.Text)
}

func TestParse_SyntaxErrorCarriesOffsetAndPath(t *testing.T) {
	_, err := Parse([]byte(`{"selections": [{"name": }]}`))
	require.Error(t, err)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 25, perr.Offset)
	assert.Contains(t, perr.Path, "selections")
	assert.Contains(t, perr.Expected, "a value")
}

func TestParse_TrailingGarbage(t *testing.T) {
	_, err := Parse([]byte(`{"a": 1} garbage`))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Expected, "end of literal")
}

func TestParse_MissingColon(t *testing.T) {
	_, err := Parse([]byte(`{"a" 1}`))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Expected, "':'")
}
