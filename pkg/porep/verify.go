package porep

import (
	"context"

	"go.opencensus.io/tag"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/merkle"
	"github.com/filecoin-project/go-porep/pkg/metrics"
	"github.com/filecoin-project/go-porep/pkg/stacked"
	"github.com/filecoin-project/go-porep/pkg/types"
	"github.com/filecoin-project/go-porep/pkg/util/paralle"
)

var (
	outcomeKey    = tag.MustNewKey("outcome")
	verifications = metrics.NewInt64Counter("porep/verifications", "Number of replica proofs checked, by outcome", outcomeKey)
)

// Verify checks proof against the public inputs.
//
// Parameters, replica id, challenge seed and challenge count must match those
// of the verifier and the layer roots must hash to comm_r; otherwise Verify
// returns an error wrapping types.ErrParameterMismatch. A proof whose evidence
// does not hold yields false and a nil error. An index out of bounds while
// evaluating is returned as an error wrapping types.ErrOutOfBounds.
func Verify(ctx context.Context, pp *PublicParams, pub PublicInputs, proof *Proof) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "porep.Verify")
	defer span.End()

	if err := checkPublic(pp, pub, proof); err != nil {
		verifications.IncWithTags(ctx, 1, tag.Upsert(outcomeKey, "mismatch"))
		return false, err
	}

	challenges := DeriveChallenges(pub.ChallengeSeed, pp.ChallengeCount, pp.Nodes())
	par := paralle.NewPar(pp.Workers)
	for k := range challenges {
		k := k
		par.Go(func() error {
			if err := verifyChallenge(pp, pub, challenges[k], &proof.Challenges[k]); err != nil {
				return xerrors.Errorf("challenge %d (node %d): %w", k, challenges[k], err)
			}
			return nil
		})
	}
	failed := par.Wait()
	ok, err := outcome(failed)
	switch {
	case err != nil:
		verifications.IncWithTags(ctx, 1, tag.Upsert(outcomeKey, "error"))
		return false, err
	case !ok:
		log.Debugf("proof for replica %s rejected: %s", pub.ReplicaID, failed)
		verifications.IncWithTags(ctx, 1, tag.Upsert(outcomeKey, "invalid"))
		return false, nil
	}

	verifications.IncWithTags(ctx, 1, tag.Upsert(outcomeKey, "valid"))
	return true, nil
}

// outcome sorts the aggregated challenge errors. Out of bounds indices
// derived from validated parameters mean the verifier could not evaluate
// the proof and are returned as errors; everything else is rejected evidence.
func outcome(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if xerrors.Is(err, types.ErrOutOfBounds) {
		return false, xerrors.Errorf("evaluating proof: %w", err)
	}
	return false, nil
}

func checkPublic(pp *PublicParams, pub PublicInputs, proof *Proof) error {
	if proof == nil {
		return types.NewInvalidParameters("missing proof")
	}
	if pub.Tau == nil {
		return types.NewInvalidParameters("missing commitments")
	}
	if want := pp.Header(); proof.Header != want {
		return types.NewParameterMismatch("parameters", want, proof.Header)
	}
	if proof.ReplicaID != pub.ReplicaID {
		return types.NewParameterMismatch("replica id", pub.ReplicaID, proof.ReplicaID)
	}
	if proof.ChallengeSeed != pub.ChallengeSeed {
		return types.NewParameterMismatch("challenge seed", pub.ChallengeSeed, proof.ChallengeSeed)
	}
	if len(proof.Challenges) != pp.ChallengeCount {
		return types.NewParameterMismatch("challenge count", pp.ChallengeCount, len(proof.Challenges))
	}
	if len(pub.Tau.LayerRoots) != pp.Layers() {
		return types.NewParameterMismatch("layer roots", pp.Layers(), len(pub.Tau.LayerRoots))
	}
	if commR := ComputeCommR(pp.Hasher, pub.Tau.LayerRoots, pub.Tau.CommRLast); commR != pub.Tau.CommR {
		return types.NewParameterMismatch("comm_r", commR, pub.Tau.CommR)
	}
	return nil
}

func checkOpening(pp *PublicParams, root types.Domain, ln LabeledNode, index types.NodeIndex, what string) error {
	if ln.Index != index {
		return types.NewVerificationFailed("%s opens node %d, expected %d", what, ln.Index, index)
	}
	if !merkle.Verify(pp.Hasher, root, pp.Nodes(), index, ln.Value, ln.Proof) {
		return types.NewVerificationFailed("%s node %d does not open under its root", what, index)
	}
	return nil
}

func checkParents(pp *PublicParams, root types.Domain, got []LabeledNode, want []types.NodeIndex, what string) ([]types.Domain, error) {
	if len(got) != len(want) {
		return nil, types.NewVerificationFailed("%s: %d parents, expected %d", what, len(got), len(want))
	}
	labels := make([]types.Domain, len(got))
	for k := range got {
		if err := checkOpening(pp, root, got[k], want[k], what); err != nil {
			return nil, err
		}
		labels[k] = got[k].Value
	}
	return labels, nil
}

func verifyChallenge(pp *PublicParams, pub PublicInputs, c types.NodeIndex, cp *ChallengeProof) error {
	g := pp.Graph
	tau := pub.Tau
	if cp.Node != c {
		return types.NewVerificationFailed("proof answers node %d", cp.Node)
	}
	if len(cp.Layers) != g.Layers() {
		return types.NewVerificationFailed("%d layer proofs, expected %d", len(cp.Layers), g.Layers())
	}

	col := stacked.Column{Index: c, Rows: make([]types.Domain, 0, g.Layers())}
	for l := range cp.Layers {
		lp := &cp.Layers[l]
		if lp.Layer != l {
			return types.NewVerificationFailed("layer proof %d claims layer %d", l, lp.Layer)
		}
		ps, err := g.Parents(l, c)
		if err != nil {
			return err
		}
		if err := checkOpening(pp, tau.LayerRoots[l], lp.Node, c, "label"); err != nil {
			return xerrors.Errorf("layer %d: %w", l, err)
		}
		base, err := checkParents(pp, tau.LayerRoots[l], lp.BaseParents, ps.Base, "base parent")
		if err != nil {
			return xerrors.Errorf("layer %d: %w", l, err)
		}
		var exp []types.Domain
		if l > 0 {
			exp, err = checkParents(pp, tau.LayerRoots[l-1], lp.ExpansionParents, ps.Expansion, "expansion parent")
			if err != nil {
				return xerrors.Errorf("layer %d: %w", l, err)
			}
		} else if len(lp.ExpansionParents) != 0 {
			return types.NewVerificationFailed("layer 0 carries %d expansion parents", len(lp.ExpansionParents))
		}

		want := stacked.ComputeLabel(pp.Hasher, pub.ReplicaID, l, c, base, exp)
		if want != lp.Node.Value {
			return types.NewVerificationFailed("layer %d: label of node %d does not match its parents", l, c)
		}
		col.Rows = append(col.Rows, lp.Node.Value)
	}

	enc := &cp.Encoding
	if err := checkOpening(pp, tau.CommD, enc.Data, c, "data"); err != nil {
		return err
	}
	if err := checkOpening(pp, tau.CommRLast, enc.Replica, c, "replica"); err != nil {
		return err
	}
	if col.Hash(pp.Hasher) != enc.Column {
		return types.NewVerificationFailed("column digest of node %d does not match", c)
	}
	replica, err := stacked.EncodeNode(pp.Combiner, enc.Data.Value, col)
	if err != nil {
		return types.NewVerificationFailed("encoding node %d: %s", c, err)
	}
	if replica != enc.Replica.Value {
		return types.NewVerificationFailed("node %d does not encode to its replica block", c)
	}
	return nil
}
