// Package porep seals data into a stacked DRG replica and proves and
// verifies storage of it by answering seeded challenges.
package porep

import (
	logging "github.com/ipfs/go-log/v2"

	"github.com/filecoin-project/go-porep/pkg/drgraph"
	"github.com/filecoin-project/go-porep/pkg/hasher"
	"github.com/filecoin-project/go-porep/pkg/stacked"
	"github.com/filecoin-project/go-porep/pkg/types"
)

var log = logging.Logger("porep")

// ProofVersion names the proof layout. It is part of every parameter header.
const ProofVersion = "stacked-drg/" + drgraph.Version + "/1"

// SetupParams configures one parameter set.
type SetupParams struct {
	Nodes           uint64
	BaseDegree      int
	ExpansionDegree int
	Layers          int
	Seed            types.Seed

	// Hasher and Combine name the hash function and combine mode. Empty
	// selects sha256 and xor.
	Hasher  string
	Combine string

	ChallengeCount int

	// Workers bounds parallelism. Zero selects runtime.NumCPU(). It does
	// not affect any output.
	Workers int
}

// ParamsHeader is the part of the public parameters that prover and verifier
// must agree on bit for bit. Every proof carries one.
type ParamsHeader struct {
	Version         string
	Nodes           uint64
	BaseDegree      int
	ExpansionDegree int
	Layers          int
	Seed            types.Seed
	Hasher          string
	Combine         string
	ChallengeCount  int
}

// PublicParams is a validated parameter set with its graph.
type PublicParams struct {
	Graph          *stacked.Graph
	Hasher         hasher.Hasher
	Combiner       stacked.Combiner
	ChallengeCount int
	Workers        int
}

// Setup validates sp and builds the stacked graph, reusing a cached graph
// for parameters seen before.
func Setup(sp SetupParams) (*PublicParams, error) {
	if sp.ChallengeCount <= 0 {
		return nil, types.NewInvalidParameters("challenge count must be positive, got %d", sp.ChallengeCount)
	}
	h, err := hasher.New(sp.Hasher)
	if err != nil {
		return nil, err
	}
	c, err := stacked.NewCombiner(sp.Combine)
	if err != nil {
		return nil, err
	}
	g, err := graphs.get(sp)
	if err != nil {
		return nil, err
	}
	return &PublicParams{
		Graph:          g,
		Hasher:         h,
		Combiner:       c,
		ChallengeCount: sp.ChallengeCount,
		Workers:        sp.Workers,
	}, nil
}

// Header returns the agreed part of pp.
func (pp *PublicParams) Header() ParamsHeader {
	g := pp.Graph
	return ParamsHeader{
		Version:         ProofVersion,
		Nodes:           g.Size(),
		BaseDegree:      g.BaseDegree(),
		ExpansionDegree: g.ExpansionDegree(),
		Layers:          g.Layers(),
		Seed:            g.Base().Seed(),
		Hasher:          pp.Hasher.Name(),
		Combine:         pp.Combiner.Name(),
		ChallengeCount:  pp.ChallengeCount,
	}
}

// Nodes returns N.
func (pp *PublicParams) Nodes() uint64 { return pp.Graph.Size() }

// Layers returns L.
func (pp *PublicParams) Layers() int { return pp.Graph.Layers() }

// SealedSize returns the byte size of data and of a replica.
func (pp *PublicParams) SealedSize() uint64 { return pp.Graph.Size() * types.NodeSize }
