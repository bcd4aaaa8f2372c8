// Package naming assigns short stable names to extracted structures. A name
// is the shortest hex prefix of the content digest that does not collide with
// a name already issued for a different digest.
package naming

import (
	"errors"

	"relaydedup/internal/canon"
)

// minPrefix is the starting prefix length; maxPrefix is the full digest.
const (
	minPrefix = 3
	maxPrefix = 32
)

// ErrOverflow is returned when every prefix up to the full digest is taken by
// other digests. With a 128-bit hash this is unreachable in practice.
var ErrOverflow = errors.New("naming: hash prefix space exhausted")

// Allocator issues names of the form x_<hex-prefix>. It is idempotent: the
// same digest always yields the same name within one run.
type Allocator struct {
	byName   map[string]canon.Digest
	byDigest map[canon.Digest]string
}

func NewAllocator() *Allocator {
	return &Allocator{
		byName:   make(map[string]canon.Digest),
		byDigest: make(map[canon.Digest]string),
	}
}

// Name returns the allocated name for digest, issuing a new one on first use.
func (a *Allocator) Name(digest canon.Digest) (string, error) {
	if name, ok := a.byDigest[digest]; ok {
		return name, nil
	}
	hexForm := digest.Hex()
	for n := minPrefix; n <= maxPrefix; n++ {
		name := "x_" + hexForm[:n]
		if _, taken := a.byName[name]; taken {
			continue
		}
		a.byName[name] = digest
		a.byDigest[digest] = name
		return name, nil
	}
	return "", ErrOverflow
}

// Lookup returns the digest a name was issued for.
func (a *Allocator) Lookup(name string) (canon.Digest, bool) {
	d, ok := a.byName[name]
	return d, ok
}

// Len reports how many names have been issued.
func (a *Allocator) Len() int {
	return len(a.byDigest)
}
