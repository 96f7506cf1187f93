package porep

import (
	commcid "github.com/filecoin-project/go-fil-commcid"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/go-porep/pkg/hasher"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// Tau holds the public commitments of one replica.
type Tau struct {
	// CommD commits the unsealed data.
	CommD types.Domain
	// CommR binds every layer root and CommRLast together.
	CommR types.Domain
	// CommRLast commits the replica.
	CommRLast types.Domain
	// LayerRoots[l] commits the labels of layer l.
	LayerRoots []types.Domain
}

// ComputeCommR returns H(root_0 ‖ … ‖ root_{L-1} ‖ comm_r_last).
func ComputeCommR(h hasher.Hasher, roots []types.Domain, commRLast types.Domain) types.Domain {
	parts := make([][]byte, 0, len(roots)+1)
	for l := range roots {
		parts = append(parts, roots[l][:])
	}
	parts = append(parts, commRLast[:])
	return h.Hash(parts...)
}

// CommRCID renders CommR as a sealed commitment CID.
func (t *Tau) CommRCID() (cid.Cid, error) {
	return commcid.ReplicaCommitmentV1ToCID(t.CommR[:])
}

// CommDCID renders CommD as an unsealed commitment CID.
func (t *Tau) CommDCID() (cid.Cid, error) {
	return commcid.DataCommitmentV1ToCID(t.CommD[:])
}
