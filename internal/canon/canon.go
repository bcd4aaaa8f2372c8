// Package canon produces the canonical string and content digest for literal
// sub-trees. Two sub-trees that are equivalent across the corpus — key order
// ignored for objects, element order ignored for arrays under the configured
// order-insensitive keys — canonicalise to the same string and therefore the
// same digest.
package canon

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"relaydedup/internal/tree"
)

// Digest is the 128-bit content hash of a canonical string.
type Digest [md5.Size]byte

// Hex returns the lowercase hex form, the source of allocated names.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Sum hashes a canonical string.
func Sum(canonical string) Digest {
	return md5.Sum([]byte(canonical))
}

// MinCanonicalLen is the shortest canonical form worth extracting. Degenerate
// leaves like {} and [] cost more to reference than to leave inline.
const MinCanonicalLen = 8

// Canonical serialises v into its canonical form. sortElems applies only when
// v itself is an Array; it is derived from the containing object key, so a
// caller canonicalising a free-standing sub-tree passes the context it was
// found under. Arrays nested directly inside arrays stay order-sensitive.
func Canonical(v *tree.Value, sortElems bool, insensitive map[string]struct{}) string {
	var b strings.Builder
	writeCanonical(&b, v, sortElems, insensitive)
	return b.String()
}

func writeCanonical(b *strings.Builder, v *tree.Value, sortElems bool, insensitive map[string]struct{}) {
	switch v.Kind {
	case tree.Null:
		b.WriteString("null")
	case tree.Bool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case tree.Number:
		b.WriteString(v.Text)
	case tree.String:
		b.WriteString(tree.QuoteString(v.Text))
	case tree.Reference:
		// The R: prefix keeps a reference distinct from a string or bareword
		// of the same spelling.
		b.WriteString("R:")
		b.WriteString(v.Text)
	case tree.Object:
		keys := make([]int, len(v.Entries))
		for i := range v.Entries {
			keys[i] = i
		}
		sort.Slice(keys, func(i, j int) bool {
			return v.Entries[keys[i]].Key < v.Entries[keys[j]].Key
		})
		b.WriteByte('{')
		for n, i := range keys {
			if n > 0 {
				b.WriteByte(',')
			}
			e := v.Entries[i]
			b.WriteString(tree.QuoteString(e.Key))
			b.WriteByte(':')
			childSort := false
			if e.Val.Kind == tree.Array {
				_, childSort = insensitive[e.Key]
			}
			writeCanonical(b, e.Val, childSort, insensitive)
		}
		b.WriteByte('}')
	case tree.Array:
		if !sortElems {
			b.WriteByte('[')
			for i, e := range v.Elems {
				if i > 0 {
					b.WriteByte(',')
				}
				writeCanonical(b, e, false, insensitive)
			}
			b.WriteByte(']')
			return
		}
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = Canonical(e, false, insensitive)
		}
		sort.Strings(parts)
		b.WriteByte('[')
		b.WriteString(strings.Join(parts, ","))
		b.WriteByte(']')
	}
}

// IsCandidate reports whether v is a leaf candidate: an Object or Array whose
// only Object/Array descendants are References. Scalars and References are
// never candidates.
func IsCandidate(v *tree.Value) bool {
	switch v.Kind {
	case tree.Object:
		for _, e := range v.Entries {
			if hasContainer(e.Val) {
				return false
			}
		}
		return true
	case tree.Array:
		for _, e := range v.Elems {
			if hasContainer(e) {
				return false
			}
		}
		return true
	}
	return false
}

func hasContainer(v *tree.Value) bool {
	return v.Kind == tree.Object || v.Kind == tree.Array
}
