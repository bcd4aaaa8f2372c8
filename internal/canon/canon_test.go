package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaydedup/internal/tree"
)

var insensitive = map[string]struct{}{
	"selections":          {},
	"args":                {},
	"argumentDefinitions": {},
}

func mustParse(t *testing.T, src string) *tree.Value {
	t.Helper()
	v, err := tree.Parse([]byte(src))
	require.NoError(t, err)
	return v
}

func TestCanonical_ObjectKeyOrderIrrelevant(t *testing.T) {
	a := Canonical(mustParse(t, `{"z": 1, "a": 2}`), false, insensitive)
	b := Canonical(mustParse(t, `{"a": 2, "z": 1}`), false, insensitive)
	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":2,"z":1}`, a)
}

func TestCanonical_OrderInsensitiveArraySorts(t *testing.T) {
	a := Canonical(mustParse(t, `{"args": [{"name": "b"}, {"name": "a"}]}`), false, insensitive)
	b := Canonical(mustParse(t, `{"args": [{"name": "a"}, {"name": "b"}]}`), false, insensitive)
	assert.Equal(t, a, b)
}

func TestCanonical_OrderSensitiveArrayKeepsOrder(t *testing.T) {
	a := Canonical(mustParse(t, `{"children": [1, 2]}`), false, insensitive)
	b := Canonical(mustParse(t, `{"children": [2, 1]}`), false, insensitive)
	assert.NotEqual(t, a, b)
}

func TestCanonical_SortContextComesFromOwnKeyOnly(t *testing.T) {
	// The arrays nested directly inside an order-insensitive array are not
	// themselves order-insensitive.
	a := Canonical(mustParse(t, `{"selections": [[1, 2]]}`), false, insensitive)
	b := Canonical(mustParse(t, `{"selections": [[2, 1]]}`), false, insensitive)
	assert.NotEqual(t, a, b)
}

func TestCanonical_TopLevelArrayContext(t *testing.T) {
	// A free-standing array canonicalised under an insensitive context sorts.
	a := Canonical(mustParse(t, `["b", "a"]`), true, insensitive)
	assert.Equal(t, `["a","b"]`, a)
	b := Canonical(mustParse(t, `["b", "a"]`), false, insensitive)
	assert.Equal(t, `["b","a"]`, b)
}

func TestCanonical_ReferenceDistinctFromString(t *testing.T) {
	ref := Canonical(tree.NewReference("x_abc"), false, insensitive)
	str := Canonical(mustParse(t, `"x_abc"`), false, insensitive)
	assert.Equal(t, "R:x_abc", ref)
	assert.NotEqual(t, ref, str)
}

func TestCanonical_ScalarForms(t *testing.T) {
	assert.Equal(t, "null", Canonical(mustParse(t, `null`), false, insensitive))
	assert.Equal(t, "true", Canonical(mustParse(t, `true`), false, insensitive))
	assert.Equal(t, "3.14", Canonical(mustParse(t, `3.14`), false, insensitive))
	assert.Equal(t, `"a\"b"`, Canonical(mustParse(t, `"a\"b"`), false, insensitive))
}

func TestSum_DeterministicAndDistinct(t *testing.T) {
	a := Sum(`{"a":1}`)
	assert.Equal(t, a, Sum(`{"a":1}`))
	assert.NotEqual(t, a, Sum(`{"a":2}`))
	assert.Len(t, a.Hex(), 32)
}

func TestIsCandidate(t *testing.T) {
	assert.True(t, IsCandidate(mustParse(t, `{"a": 1, "b": null}`)))
	assert.True(t, IsCandidate(mustParse(t, `[1, "two", null]`)))
	assert.False(t, IsCandidate(mustParse(t, `{"a": {"b": 1}}`)), "container child disqualifies")
	assert.False(t, IsCandidate(mustParse(t, `[[1]]`)), "nested array disqualifies")
	assert.False(t, IsCandidate(mustParse(t, `"scalar"`)))
	assert.False(t, IsCandidate(tree.NewReference("x_abc")), "a reference is never a candidate")

	// Reference children do not disqualify: this is what makes passes cascade.
	assert.True(t, IsCandidate(mustParse(t, `{"selections": x_abc}`)))
	assert.True(t, IsCandidate(mustParse(t, `[x_abc, x_def]`)))
}
