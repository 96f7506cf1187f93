// Package circuit is the boundary to a succinct proving backend. The core
// produces vanilla proofs; a Backend turns them into succinct ones.
package circuit

import (
	"context"
	"encoding/binary"

	"github.com/filecoin-project/go-porep/pkg/porep"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// Mode selects which commitments appear among the public inputs.
type Mode int

const (
	// Public lists every root next to the index it opens.
	Public Mode = iota
	// Private omits the roots; the circuit keeps them as witnesses.
	Private
)

// Inputs are the public inputs of one circuit instance.
type Inputs struct {
	Public porep.PublicInputs
	Mode   Mode
}

// Circuit is a backend specific instance ready for proving.
type Circuit interface {
	// PublicInputs returns the flattened field elements the instance
	// exposes.
	PublicInputs() []types.Domain
}

// ProvingKey and VerifyingKey are opaque backend keys.
type (
	ProvingKey   []byte
	VerifyingKey []byte
)

// SnarkProof is an opaque succinct proof.
type SnarkProof []byte

// Backend turns vanilla proofs into succinct ones and checks them.
type Backend interface {
	BuildCircuit(proof *porep.Proof, in Inputs) (Circuit, error)
	Prove(ctx context.Context, c Circuit, pk ProvingKey) (SnarkProof, error)
	Verify(ctx context.Context, p SnarkProof, in Inputs, vk VerifyingKey) (bool, error)
}

func indexElement(i types.NodeIndex) types.Domain {
	var d types.Domain
	binary.LittleEndian.PutUint64(d[:8], i)
	return d
}

// GeneratePublicInputs flattens in into field elements: the replica id,
// then for every challenge one opening per node of every layer (the node,
// its base parents, its expansion parents), the replica opening and the
// data opening. An opening is its leaf index followed, in Public mode, by
// the root it opens under.
func GeneratePublicInputs(pp *porep.PublicParams, in Inputs) ([]types.Domain, error) {
	tau := in.Public.Tau
	if tau == nil {
		return nil, types.NewInvalidParameters("missing commitments")
	}
	if len(tau.LayerRoots) != pp.Layers() {
		return nil, types.NewParameterMismatch("layer roots", pp.Layers(), len(tau.LayerRoots))
	}

	out := []types.Domain{in.Public.ReplicaID}
	opening := func(root types.Domain, i types.NodeIndex) {
		out = append(out, indexElement(i))
		if in.Mode == Public {
			out = append(out, root)
		}
	}

	g := pp.Graph
	for _, c := range porep.DeriveChallenges(in.Public.ChallengeSeed, pp.ChallengeCount, pp.Nodes()) {
		for l := 0; l < g.Layers(); l++ {
			ps, err := g.Parents(l, c)
			if err != nil {
				return nil, err
			}
			opening(tau.LayerRoots[l], c)
			for _, p := range ps.Base {
				opening(tau.LayerRoots[l], p)
			}
			for _, p := range ps.Expansion {
				opening(tau.LayerRoots[l-1], p)
			}
		}
		opening(tau.CommRLast, c)
		opening(tau.CommD, c)
	}
	return out, nil
}
