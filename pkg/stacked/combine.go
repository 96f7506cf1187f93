package stacked

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/filecoin-project/go-porep/pkg/types"
)

const (
	// XORName mixes labels into data with a bytewise exclusive or.
	XORName = "xor"
	// FieldName adds labels to data in the BLS12-381 scalar field.
	FieldName = "field"
)

// Combiner mixes a label into a source block reversibly. Every combiner is
// commutative across layers, so peeling labels in any order recovers the
// source.
type Combiner interface {
	Name() string
	// Check reports whether v is an admissible data block.
	Check(v types.Domain) error
	Combine(label, src types.Domain) types.Domain
	Uncombine(label, enc types.Domain) types.Domain
}

// NewCombiner returns the combiner called name. The empty name selects xor.
func NewCombiner(name string) (Combiner, error) {
	switch name {
	case "", XORName:
		return xorCombiner{}, nil
	case FieldName:
		return fieldCombiner{}, nil
	default:
		return nil, types.NewInvalidParameters("unknown combine mode %q", name)
	}
}

type xorCombiner struct{}

func (xorCombiner) Name() string { return XORName }

func (xorCombiner) Check(types.Domain) error { return nil }

func (xorCombiner) Combine(label, src types.Domain) types.Domain {
	var out types.Domain
	for k := range out {
		out[k] = label[k] ^ src[k]
	}
	return out
}

func (c xorCombiner) Uncombine(label, enc types.Domain) types.Domain {
	return c.Combine(label, enc)
}

// frModulus is the order of the BLS12-381 scalar field.
var frModulus = uint256.MustFromHex("0x73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001")

type fieldCombiner struct{}

func (fieldCombiner) Name() string { return FieldName }

func (fieldCombiner) Check(v types.Domain) error {
	if !toScalar(v).Lt(frModulus) {
		return types.NewInvalidParameters("block %s is not a canonical field element", v)
	}
	return nil
}

func (fieldCombiner) Combine(label, src types.Domain) types.Domain {
	var out uint256.Int
	out.AddMod(toScalar(label), toScalar(src), frModulus)
	return fromScalar(&out)
}

func (fieldCombiner) Uncombine(label, enc types.Domain) types.Domain {
	var neg, out uint256.Int
	neg.Sub(frModulus, toScalar(label))
	out.AddMod(toScalar(enc), &neg, frModulus)
	return fromScalar(&out)
}

// Domain elements are little-endian; uint256 reads big-endian bytes.
func toScalar(d types.Domain) *uint256.Int {
	var be [types.NodeSize]byte
	for k := range d {
		be[types.NodeSize-1-k] = d[k]
	}
	return new(uint256.Int).SetBytes(be[:])
}

func fromScalar(v *uint256.Int) types.Domain {
	be := v.Bytes32()
	var d types.Domain
	for k := range be {
		d[types.NodeSize-1-k] = be[k]
	}
	return d
}

func containsIndex(s []types.NodeIndex, v types.NodeIndex) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func sortIndices(s []types.NodeIndex) {
	sort.Slice(s, func(a, b int) bool { return s[a] < s[b] })
}
