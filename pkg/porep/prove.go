package porep

import (
	"context"

	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/merkle"
	"github.com/filecoin-project/go-porep/pkg/metrics"
	"github.com/filecoin-project/go-porep/pkg/stacked"
	"github.com/filecoin-project/go-porep/pkg/types"
	"github.com/filecoin-project/go-porep/pkg/util/paralle"
)

var proofsGenerated = metrics.NewInt64Counter("porep/proofs_generated", "Number of replica proofs generated")

// Prove answers the challenges derived from pub.ChallengeSeed using the
// trees of aux. Parents are re-derived from the graph. Challenges are
// proven in parallel.
func Prove(ctx context.Context, pp *PublicParams, pub PublicInputs, aux *Aux) (*Proof, error) {
	ctx, span := trace.StartSpan(ctx, "porep.Prove")
	defer span.End()

	if aux == nil {
		return nil, types.NewInvalidParameters("missing aux")
	}
	if len(aux.Layers) != pp.Layers() || aux.TreeD == nil || aux.TreeRLast == nil {
		return nil, types.NewInvalidParameters("aux holds %d layer trees, need %d plus data and replica trees", len(aux.Layers), pp.Layers())
	}

	challenges := DeriveChallenges(pub.ChallengeSeed, pp.ChallengeCount, pp.Nodes())
	proof := &Proof{
		Header:        pp.Header(),
		ReplicaID:     pub.ReplicaID,
		ChallengeSeed: pub.ChallengeSeed,
		Challenges:    make([]ChallengeProof, len(challenges)),
	}

	par := paralle.NewPar(pp.Workers)
	for k, c := range challenges {
		if err := ctx.Err(); err != nil {
			break
		}
		k, c := k, c
		par.Go(func() error {
			cp, err := proveChallenge(pp, aux, c)
			if err != nil {
				return xerrors.Errorf("challenge %d (node %d): %w", k, c, err)
			}
			proof.Challenges[k] = *cp
			return nil
		})
	}
	if err := par.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	proofsGenerated.Inc(ctx, 1)
	log.Debugf("proved %d challenges for replica %s", len(challenges), pub.ReplicaID)
	return proof, nil
}

func open(t *merkle.Tree, i types.NodeIndex) (LabeledNode, error) {
	v, err := t.Leaf(i)
	if err != nil {
		return LabeledNode{}, err
	}
	p, err := t.Prove(i)
	if err != nil {
		return LabeledNode{}, err
	}
	return LabeledNode{Index: i, Value: v, Proof: p}, nil
}

func openAll(t *merkle.Tree, idx []types.NodeIndex) ([]LabeledNode, error) {
	out := make([]LabeledNode, 0, len(idx))
	for _, i := range idx {
		ln, err := open(t, i)
		if err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, nil
}

func proveChallenge(pp *PublicParams, aux *Aux, c types.NodeIndex) (*ChallengeProof, error) {
	g := pp.Graph
	cp := &ChallengeProof{
		Node:   c,
		Layers: make([]LayerProof, 0, g.Layers()),
	}
	col := stacked.Column{Index: c, Rows: make([]types.Domain, 0, g.Layers())}

	for l := 0; l < g.Layers(); l++ {
		ps, err := g.Parents(l, c)
		if err != nil {
			return nil, err
		}
		node, err := open(aux.Layers[l], c)
		if err != nil {
			return nil, err
		}
		lp := LayerProof{Layer: l, Node: node}
		if lp.BaseParents, err = openAll(aux.Layers[l], ps.Base); err != nil {
			return nil, err
		}
		// layer 0 has no expansion parents, so prev is never read there
		var prev *merkle.Tree
		if l > 0 {
			prev = aux.Layers[l-1]
		}
		if lp.ExpansionParents, err = openAll(prev, ps.Expansion); err != nil {
			return nil, err
		}
		cp.Layers = append(cp.Layers, lp)
		col.Rows = append(col.Rows, node.Value)
	}

	var err error
	if cp.Encoding.Data, err = open(aux.TreeD, c); err != nil {
		return nil, err
	}
	if cp.Encoding.Replica, err = open(aux.TreeRLast, c); err != nil {
		return nil, err
	}
	cp.Encoding.Column = col.Hash(pp.Hasher)
	return cp, nil
}
