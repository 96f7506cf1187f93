// Package hasher is the pluggable hash boundary. Every algorithm of the
// module only assumes a fixed 32-byte digest; which primitive produces it is
// chosen at configuration time.
package hasher

import (
	"hash"
	"sort"

	"github.com/filecoin-project/go-porep/pkg/types"
)

// Hasher produces trimmed 32-byte digests.
type Hasher interface {
	// Name is the configuration name of the hasher.
	Name() string
	// Hash digests the concatenation of parts.
	Hash(parts ...[]byte) types.Domain
	// Node digests a merkle node from its two children.
	Node(left, right types.Domain) types.Domain
}

// Default is the hasher used when no name is configured.
const Default = SHA256Name

var registry = map[string]func() hash.Hash{
	SHA256Name:  newSHA256,
	Blake2sName: newBlake2s,
	Blake2bName: newBlake2b,
}

// New returns the hasher registered under name.
func New(name string) (Hasher, error) {
	if name == "" {
		name = Default
	}
	ctor, ok := registry[name]
	if !ok {
		return nil, types.NewInvalidParameters("unknown hasher %q", name)
	}
	return &digester{name: name, newHash: ctor}, nil
}

// Names lists the registered hashers in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// digester adapts a hash.Hash constructor with a 32-byte output.
type digester struct {
	name    string
	newHash func() hash.Hash
}

func (d *digester) Name() string {
	return d.name
}

func (d *digester) Hash(parts ...[]byte) types.Domain {
	h := d.newHash()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out types.Domain
	h.Sum(out[:0])
	out.Trim()
	return out
}

func (d *digester) Node(left, right types.Domain) types.Domain {
	return d.Hash(left[:], right[:])
}
