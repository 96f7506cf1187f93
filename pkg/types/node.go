package types

import (
	"encoding/binary"
	"encoding/hex"
)

// NodeSize is the size in bytes of one node of a layer. It is also the size
// of every digest produced by a hasher.
const NodeSize = 32

// NodeIndex identifies a node within one layer, in [0, N).
type NodeIndex = uint64

// Domain is a single hash-sized element: a label, a data block, a replica
// block or a merkle node.
type Domain [NodeSize]byte

// Trim clears the two most significant bits of the little-endian value so the
// element is always below 2^254.
func (d *Domain) Trim() {
	d[NodeSize-1] &= 0x3f
}

// IsZero reports whether every byte of d is zero.
func (d Domain) IsZero() bool {
	return d == Domain{}
}

// Bytes returns a copy of the element.
func (d Domain) Bytes() []byte {
	out := make([]byte, NodeSize)
	copy(out, d[:])
	return out
}

func (d Domain) String() string {
	return hex.EncodeToString(d[:])
}

// DomainFromBytes copies b into a Domain. b must be exactly NodeSize long.
func DomainFromBytes(b []byte) (Domain, error) {
	var d Domain
	if len(b) != NodeSize {
		return d, NewInvalidParameters("domain element must be %d bytes, got %d", NodeSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Seed drives deterministic sampling: graph construction and challenges.
type Seed [32]byte

// SeedFromUint64 writes v little-endian into the first eight bytes.
func SeedFromUint64(v uint64) Seed {
	var s Seed
	binary.LittleEndian.PutUint64(s[:8], v)
	return s
}

func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// ReplicaID uniquely identifies one replica; it keys every label.
type ReplicaID = Domain

// NodeAt returns the element stored at node i of a flat arena.
func NodeAt(arena []byte, i NodeIndex) []byte {
	start := i * NodeSize
	return arena[start : start+NodeSize]
}
