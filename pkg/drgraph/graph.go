// Package drgraph builds the depth-robust base graph of a stacked replica.
//
// Parents are sampled with the bucket-v1 scheme: for node i the candidates are
// grouped into buckets of exponentially increasing distance, so every node
// keeps a local edge to i-1 and a spread of long-range edges. Sampling is a
// pure function of the seed and the node index.
package drgraph

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/bits"
	"sort"

	logging "github.com/ipfs/go-log/v2"
	sha256 "github.com/minio/sha256-simd"

	"github.com/filecoin-project/go-porep/pkg/types"
	"github.com/filecoin-project/go-porep/pkg/util/paralle"
)

var log = logging.Logger("drgraph")

// Version names the sampling algorithm. It is part of every parameter digest.
const Version = "bucket-v1"

const bucketTag = "stacked-drg/bucket/v1"

// attemptFactor bounds rejection sampling at attemptFactor*degree draws.
const attemptFactor = 16

// BucketGraph is an immutable DRG over N nodes with base degree d.
type BucketGraph struct {
	nodes  uint64
	degree int
	seed   types.Seed

	// cache holds degree parents per node when populated. Bootstrap nodes
	// with fewer parents are padded and never read past their length.
	cache []uint32
}

// Option configures graph construction.
type Option func(*options)

type options struct {
	workers int
	noCache bool
}

// WithWorkers sets how many goroutines build the parent cache. Values below
// one select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithoutCache makes the graph sample parents on every call.
func WithoutCache() Option {
	return func(o *options) {
		o.noCache = true
	}
}

// New validates the parameters and builds the graph.
func New(nodes uint64, degree int, seed types.Seed, opts ...Option) (*BucketGraph, error) {
	if nodes == 0 {
		return nil, types.NewInvalidParameters("graph must have at least one node")
	}
	if degree <= 0 {
		return nil, types.NewInvalidParameters("base degree must be positive, got %d", degree)
	}
	if uint64(degree) >= nodes {
		return nil, types.NewInvalidParameters("base degree %d must be below node count %d", degree, nodes)
	}
	if nodes > math.MaxUint32 {
		return nil, types.NewInvalidParameters("node count %d exceeds %d", nodes, uint64(math.MaxUint32))
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	g := &BucketGraph{nodes: nodes, degree: degree, seed: seed}
	if !o.noCache {
		if err := g.buildCache(o.workers); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *BucketGraph) buildCache(workers int) error {
	cache := make([]uint32, g.nodes*uint64(g.degree))
	err := paralle.ForEachRange(g.nodes, workers, func(r paralle.Range) error {
		buf := make([]types.NodeIndex, 0, g.degree)
		for i := r.Start; i < r.End; i++ {
			buf = g.sample(i, buf[:0])
			row := cache[i*uint64(g.degree):]
			for k, p := range buf {
				row[k] = uint32(p)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	g.cache = cache
	log.Debugf("built parent cache for %d nodes, degree %d", g.nodes, g.degree)
	return nil
}

// Size returns the number of nodes.
func (g *BucketGraph) Size() uint64 { return g.nodes }

// Degree returns the base degree.
func (g *BucketGraph) Degree() int { return g.degree }

// Seed returns the sampling seed.
func (g *BucketGraph) Seed() types.Seed { return g.seed }

// ID returns a stable digest of the algorithm version and parameters.
func (g *BucketGraph) ID() string {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], g.nodes)
	binary.LittleEndian.PutUint64(buf[8:], uint64(g.degree))

	h := sha256.New()
	_, _ = h.Write([]byte(Version))
	_, _ = h.Write(buf[:])
	_, _ = h.Write(g.seed[:])
	return hex.EncodeToString(h.Sum(nil))
}

// ParentCount returns how many parents node i has: min(i, d).
func (g *BucketGraph) ParentCount(i types.NodeIndex) int {
	if i < uint64(g.degree) {
		return int(i)
	}
	return g.degree
}

// Parents returns a fresh copy of the parents of node i, ascending.
func (g *BucketGraph) Parents(i types.NodeIndex) ([]types.NodeIndex, error) {
	return g.ParentsInto(i, make([]types.NodeIndex, 0, g.degree))
}

// ParentsInto appends the parents of node i to dst.
func (g *BucketGraph) ParentsInto(i types.NodeIndex, dst []types.NodeIndex) ([]types.NodeIndex, error) {
	if i >= g.nodes {
		return dst, types.NewOutOfBounds("node", i, g.nodes)
	}
	if g.cache == nil {
		return g.sample(i, dst), nil
	}
	row := g.cache[i*uint64(g.degree):]
	for k := 0; k < g.ParentCount(i); k++ {
		dst = append(dst, uint64(row[k]))
	}
	return dst, nil
}

// sample runs bucket-v1 for node i and appends the result to dst.
func (g *BucketGraph) sample(i types.NodeIndex, dst []types.NodeIndex) []types.NodeIndex {
	d := uint64(g.degree)
	if i < d {
		for p := uint64(0); p < i; p++ {
			dst = append(dst, p)
		}
		return dst
	}

	start := len(dst)
	dst = append(dst, i-1)

	// d >= 2 whenever the loop runs, so i-1 >= 1 and buckets >= 1.
	buckets := uint64(bits.Len64(i - 1))
	stream := NewStream(bucketTag, g.seed, 0, i)
	for attempt := uint64(0); attempt < attemptFactor*d && uint64(len(dst)-start) < d; attempt++ {
		r1, r2 := stream.Uint64(), stream.Uint64()

		b := r1%buckets + 1
		hi := i
		if b < 64 && uint64(1)<<b < hi {
			hi = uint64(1) << b
		}
		lo := hi >> 1
		if lo < 2 {
			lo = 2
		}
		dist := lo + r2%(hi-lo+1)
		p := i - dist
		if !contains(dst[start:], p) {
			dst = append(dst, p)
		}
	}

	for p := i - 1; uint64(len(dst)-start) < d; {
		p--
		if !contains(dst[start:], p) {
			dst = append(dst, p)
		}
	}

	sortIndices(dst[start:])
	return dst
}

func contains(s []types.NodeIndex, v types.NodeIndex) bool {
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
