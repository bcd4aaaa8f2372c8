package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `/**
 * @generated SignedSource<<deadbeef>>
 */

import { ConcreteRequest } from "relay-runtime";

const node: ConcreteRequest = {
  "kind": "Request",
  "text": "query { me { id } }"
};

export default node;
`

func TestExtractLiteral_SplitsAroundLiteral(t *testing.T) {
	prelude, literal, postlude, ok := ExtractLiteral([]byte(sample))
	require.True(t, ok)
	assert.True(t, len(prelude) > 0)
	assert.Equal(t, byte('{'), literal[0])
	assert.Equal(t, byte('}'), literal[len(literal)-1])
	assert.Equal(t, ";\n\nexport default node;\n", string(postlude))

	// Byte-exact reassembly.
	assert.Equal(t, sample, string(prelude)+string(literal)+string(postlude))
}

func TestExtractLiteral_BracesInsideStrings(t *testing.T) {
	src := `const node: T = {"text": "fragment F { a { b } }", "x": "\" } ["};
`
	_, literal, _, ok := ExtractLiteral([]byte(src))
	require.True(t, ok)
	assert.Equal(t, `{"text": "fragment F { a { b } }", "x": "\" } ["}`, string(literal))
}

func TestExtractLiteral_NoAnchor(t *testing.T) {
	_, _, _, ok := ExtractLiteral([]byte(`export const other = { a: 1 };`))
	assert.False(t, ok)
}

func TestExtractLiteral_RewrittenRootSkipped(t *testing.T) {
	// A file whose root was promoted on an earlier run has no literal left.
	_, _, _, ok := ExtractLiteral([]byte("const node: T = x_a1b;\n\nexport default node;\n"))
	assert.False(t, ok)
}

func TestExtractLiteral_Unbalanced(t *testing.T) {
	_, _, _, ok := ExtractLiteral([]byte(`const node = {"a": [1, 2}`))
	assert.False(t, ok)
}
