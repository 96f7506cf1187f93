// Package merkle commits a layer with a binary hash tree and opens single
// leaves with inclusion proofs.
//
// A tree over N leaves has width W = N rounded up to a power of two. Leaves
// N..W-1 are the all-zero sentinel. The tree is persisted flat into a region
// of 2W-1 records: level 0 (the W leaves), then level 1, and so on up to the
// root, so node (level, i) is record Offset(W, level)+i.
package merkle

import (
	"context"
	"math/bits"

	logging "github.com/ipfs/go-log/v2"

	"github.com/filecoin-project/go-porep/pkg/hasher"
	"github.com/filecoin-project/go-porep/pkg/store"
	"github.com/filecoin-project/go-porep/pkg/types"
	"github.com/filecoin-project/go-porep/pkg/util/paralle"
)

var log = logging.Logger("merkle")

// Tree is a committed layer backed by a region.
type Tree struct {
	h      hasher.Hasher
	leaves uint64
	width  uint64
	depth  int
	region store.Region
	root   types.Domain
}

// Width returns n rounded up to a power of two; zero maps to one.
func Width(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return uint64(1) << bits.Len64(n-1)
}

// Depth returns log2 of the width for n leaves: the length of every proof.
func Depth(n uint64) int {
	return bits.TrailingZeros64(Width(n))
}

// Records returns how many records the persisted tree over n leaves takes.
func Records(n uint64) uint64 {
	return 2*Width(n) - 1
}

// Offset returns the first record of level in a tree of the given width.
func Offset(width uint64, level int) uint64 {
	var off uint64
	for l := 0; l < level; l++ {
		off += width >> uint(l)
	}
	return off
}

// Commit builds the tree over leaves and writes it into region. leaves holds
// N*32 bytes. A nil region keeps the tree in memory. Each level is hashed in
// parallel chunks once the level below is complete.
func Commit(ctx context.Context, h hasher.Hasher, leaves []byte, region store.Region, workers int) (*Tree, error) {
	if len(leaves) == 0 || len(leaves)%types.NodeSize != 0 {
		return nil, types.NewInvalidParameters("leaves must be a non-empty whole number of nodes, got %d bytes", len(leaves))
	}
	n := uint64(len(leaves) / types.NodeSize)
	width := Width(n)

	if region == nil {
		var err error
		region, err = store.NewMemStore().Create("tree", Records(n))
		if err != nil {
			return nil, err
		}
	}
	if region.Records() < Records(n) {
		return nil, types.NewInvalidParameters("region %s holds %d records, tree needs %d", region.Name(), region.Records(), Records(n))
	}

	level := make([]byte, width*types.NodeSize)
	copy(level, leaves)
	if err := region.WriteRange(0, level); err != nil {
		return nil, err
	}

	off := width
	for w := width; w > 1; w >>= 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := make([]byte, (w/2)*types.NodeSize)
		err := paralle.ForEachRange(w/2, workers, func(r paralle.Range) error {
			var left, right types.Domain
			for i := r.Start; i < r.End; i++ {
				copy(left[:], types.NodeAt(level, 2*i))
				copy(right[:], types.NodeAt(level, 2*i+1))
				parent := h.Node(left, right)
				copy(types.NodeAt(next, i), parent[:])
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if err := region.WriteRange(off, next); err != nil {
			return nil, err
		}
		off += w / 2
		level = next
	}

	t := &Tree{
		h:      h,
		leaves: n,
		width:  width,
		depth:  Depth(n),
		region: region,
	}
	copy(t.root[:], level)
	log.Debugf("committed %d leaves into %s, root %s", n, region.Name(), t.root)
	return t, nil
}

// Open reattaches to a tree over n leaves previously committed into region.
func Open(h hasher.Hasher, n uint64, region store.Region) (*Tree, error) {
	if n == 0 {
		return nil, types.NewInvalidParameters("tree must have at least one leaf")
	}
	if region.Records() < Records(n) {
		return nil, types.NewInvalidParameters("region %s holds %d records, tree needs %d", region.Name(), region.Records(), Records(n))
	}
	root, err := store.ReadRecord(region, Records(n)-1)
	if err != nil {
		return nil, err
	}
	return &Tree{
		h:      h,
		leaves: n,
		width:  Width(n),
		depth:  Depth(n),
		region: region,
		root:   root,
	}, nil
}

// Root returns the commitment.
func (t *Tree) Root() types.Domain { return t.root }

// Leaves returns N, the number of committed leaves before padding.
func (t *Tree) Leaves() uint64 { return t.leaves }

// Depth returns the length of every inclusion proof.
func (t *Tree) Depth() int { return t.depth }

// Region returns the backing region.
func (t *Tree) Region() store.Region { return t.region }

// Leaf returns leaf i.
func (t *Tree) Leaf(i types.NodeIndex) (types.Domain, error) {
	if i >= t.leaves {
		return types.Domain{}, types.NewOutOfBounds("leaf", i, t.leaves)
	}
	return store.ReadRecord(t.region, i)
}

// Prove opens leaf i. Siblings are listed bottom-up.
func (t *Tree) Prove(i types.NodeIndex) (InclusionProof, error) {
	if i >= t.leaves {
		return InclusionProof{}, types.NewOutOfBounds("leaf", i, t.leaves)
	}

	p := InclusionProof{
		Index:    i,
		Siblings: make([]types.Domain, 0, t.depth),
		Right:    make([]bool, 0, t.depth),
	}
	pos := i
	for level := 0; level < t.depth; level++ {
		sib, err := store.ReadRecord(t.region, Offset(t.width, level)+(pos^1))
		if err != nil {
			return InclusionProof{}, err
		}
		p.Siblings = append(p.Siblings, sib)
		// Right reports that the running node is the right child.
		p.Right = append(p.Right, pos&1 == 1)
		pos >>= 1
	}
	return p, nil
}

// Close releases the backing region.
func (t *Tree) Close() error {
	return t.region.Close()
}
