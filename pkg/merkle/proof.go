package merkle

import (
	"github.com/filecoin-project/go-porep/pkg/hasher"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// InclusionProof shows that a leaf sits at Index under some root.
// Right[k] is set when the running node at height k is a right child.
type InclusionProof struct {
	Index    types.NodeIndex
	Siblings []types.Domain
	Right    []bool
}

// Root recomputes the root implied by leaf and the path.
func (p InclusionProof) Root(h hasher.Hasher, leaf types.Domain) types.Domain {
	cur := leaf
	for k, sib := range p.Siblings {
		if p.Right[k] {
			cur = h.Node(sib, cur)
		} else {
			cur = h.Node(cur, sib)
		}
	}
	return cur
}

// Verify reports whether proof opens leaf at index under root, for a tree
// over n leaves. The path must have the exact depth of such a tree and its
// direction bits must spell out index.
func Verify(h hasher.Hasher, root types.Domain, n uint64, index types.NodeIndex, leaf types.Domain, proof InclusionProof) bool {
	if n == 0 || index >= n || proof.Index != index {
		return false
	}
	depth := Depth(n)
	if len(proof.Siblings) != depth || len(proof.Right) != depth {
		return false
	}
	for k, right := range proof.Right {
		if right != ((index>>uint(k))&1 == 1) {
			return false
		}
	}
	return proof.Root(h, leaf) == root
}
