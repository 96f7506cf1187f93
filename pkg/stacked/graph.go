// Package stacked layers a base DRG into a stacked graph and seals data
// through it.
//
// Layer l of the stack reuses the base parents of the DRG inside the layer
// and adds expansion parents that point into layer l-1. Labels depend only
// on the replica id and the graph; the data enters through the combine step.
package stacked

import (
	"encoding/binary"
	"encoding/hex"
	"runtime"

	logging "github.com/ipfs/go-log/v2"
	sha256 "github.com/minio/sha256-simd"

	"github.com/filecoin-project/go-porep/pkg/drgraph"
	"github.com/filecoin-project/go-porep/pkg/types"
	"github.com/filecoin-project/go-porep/pkg/util/paralle"
)

var log = logging.Logger("stacked")

const expansionTag = "stacked-drg/expansion/v1"

const attemptFactor = 16

// ParentSet lists the parents of one node in one layer. Base parents live in
// the same layer; expansion parents live in the previous one.
type ParentSet struct {
	Base      []types.NodeIndex
	Expansion []types.NodeIndex
}

// All returns the base parents followed by the expansion parents. This is
// the order labels are hashed in.
func (ps ParentSet) All() []types.NodeIndex {
	out := make([]types.NodeIndex, 0, len(ps.Base)+len(ps.Expansion))
	out = append(out, ps.Base...)
	return append(out, ps.Expansion...)
}

// Graph is an immutable stack of L layers over a base DRG.
type Graph struct {
	base      *drgraph.BucketGraph
	expansion int
	layers    int
	workers   int

	// exp[l] holds expansion parents for layer l, expansion per node.
	// exp[0] is nil.
	exp [][]uint32
}

// GraphOption configures NewGraph.
type GraphOption func(*Graph)

// WithWorkers bounds the parallelism of every bulk step run on the graph.
// Values below one select runtime.NumCPU().
func WithWorkers(n int) GraphOption {
	return func(g *Graph) {
		g.workers = n
	}
}

// NewGraph stacks layers copies of base with expansion cross-layer parents.
func NewGraph(base *drgraph.BucketGraph, expansion, layers int, opts ...GraphOption) (*Graph, error) {
	if base == nil {
		return nil, types.NewInvalidParameters("missing base graph")
	}
	if layers <= 0 {
		return nil, types.NewInvalidParameters("layer count must be positive, got %d", layers)
	}
	if expansion < 0 || uint64(expansion) > base.Size() {
		return nil, types.NewInvalidParameters("expansion degree %d must be in [0, %d]", expansion, base.Size())
	}

	g := &Graph{base: base, expansion: expansion, layers: layers}
	for _, opt := range opts {
		opt(g)
	}
	if g.workers < 1 {
		g.workers = runtime.NumCPU()
	}

	g.exp = make([][]uint32, layers)
	n := base.Size()
	for l := 1; l < layers && expansion > 0; l++ {
		cache := make([]uint32, n*uint64(expansion))
		layer := uint64(l)
		err := paralle.ForEachRange(n, g.workers, func(r paralle.Range) error {
			buf := make([]types.NodeIndex, 0, expansion)
			for i := r.Start; i < r.End; i++ {
				buf = g.sampleExpansion(layer, i, buf[:0])
				row := cache[i*uint64(expansion):]
				for k, p := range buf {
					row[k] = uint32(p)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		g.exp[l] = cache
	}
	log.Debugf("stacked graph %s: %d layers, expansion %d", g.ID(), layers, expansion)
	return g, nil
}

// Base returns the underlying DRG.
func (g *Graph) Base() *drgraph.BucketGraph { return g.base }

// Size returns N, the node count of one layer.
func (g *Graph) Size() uint64 { return g.base.Size() }

// Layers returns L.
func (g *Graph) Layers() int { return g.layers }

// BaseDegree returns the base degree d.
func (g *Graph) BaseDegree() int { return g.base.Degree() }

// ExpansionDegree returns e.
func (g *Graph) ExpansionDegree() int { return g.expansion }

// Workers returns the configured parallelism.
func (g *Graph) Workers() int { return g.workers }

// ID digests the base graph together with e and L.
func (g *Graph) ID() string {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(g.expansion))
	binary.LittleEndian.PutUint64(buf[8:], uint64(g.layers))

	h := sha256.New()
	_, _ = h.Write([]byte(g.base.ID()))
	_, _ = h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Parents returns both parent sets of node i in layer.
func (g *Graph) Parents(layer int, i types.NodeIndex) (ParentSet, error) {
	if err := g.checkLayer(layer); err != nil {
		return ParentSet{}, err
	}
	base, err := g.base.Parents(i)
	if err != nil {
		return ParentSet{}, err
	}
	exp, err := g.ExpansionParentsInto(layer, i, nil)
	if err != nil {
		return ParentSet{}, err
	}
	return ParentSet{Base: base, Expansion: exp}, nil
}

// ExpansionParentsInto appends the expansion parents of node i in layer to
// dst. Layer 0 has none.
func (g *Graph) ExpansionParentsInto(layer int, i types.NodeIndex, dst []types.NodeIndex) ([]types.NodeIndex, error) {
	if err := g.checkLayer(layer); err != nil {
		return dst, err
	}
	n := g.Size()
	if i >= n {
		return dst, types.NewOutOfBounds("node", i, n)
	}
	if layer == 0 || g.expansion == 0 {
		return dst, nil
	}
	row := g.exp[layer][i*uint64(g.expansion):]
	for k := 0; k < g.expansion; k++ {
		dst = append(dst, uint64(row[k]))
	}
	return dst, nil
}

func (g *Graph) checkLayer(layer int) error {
	if layer < 0 || layer >= g.layers {
		return types.NewOutOfBounds("layer", uint64(layer), uint64(g.layers))
	}
	return nil
}

// sampleExpansion draws e distinct nodes of the previous layer for node i.
func (g *Graph) sampleExpansion(layer, i types.NodeIndex, dst []types.NodeIndex) []types.NodeIndex {
	n := g.Size()
	e := uint64(g.expansion)
	start := len(dst)

	stream := drgraph.NewStream(expansionTag, g.base.Seed(), layer, i)
	for attempt := uint64(0); attempt < attemptFactor*e && uint64(len(dst)-start) < e; attempt++ {
		p := stream.Uint64() % n
		if !containsIndex(dst[start:], p) {
			dst = append(dst, p)
		}
	}
	for k := uint64(0); uint64(len(dst)-start) < e; k++ {
		p := (i + k) % n
		if !containsIndex(dst[start:], p) {
			dst = append(dst, p)
		}
	}

	s := dst[start:]
	sortIndices(s)
	return dst
}
