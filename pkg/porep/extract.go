package porep

import (
	"context"

	"github.com/filecoin-project/go-porep/pkg/stacked"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// ExtractAll recovers the whole data from a replica by regenerating every
// label layer for id.
func ExtractAll(ctx context.Context, pp *PublicParams, id types.ReplicaID, replica []byte) ([]byte, error) {
	return stacked.Decode(ctx, pp.Graph, pp.Hasher, pp.Combiner, id, replica)
}

// Extract recovers one data block from the persisted trees without
// regenerating labels.
func Extract(ctx context.Context, pp *PublicParams, aux *Aux, node types.NodeIndex) (types.Domain, error) {
	if err := ctx.Err(); err != nil {
		return types.Domain{}, err
	}
	if node >= pp.Nodes() {
		return types.Domain{}, types.NewOutOfBounds("node", node, pp.Nodes())
	}

	col := stacked.Column{Index: node, Rows: make([]types.Domain, len(aux.Layers))}
	for l, t := range aux.Layers {
		v, err := t.Leaf(node)
		if err != nil {
			return types.Domain{}, err
		}
		col.Rows[l] = v
	}
	replica, err := aux.TreeRLast.Leaf(node)
	if err != nil {
		return types.Domain{}, err
	}
	return stacked.DecodeNode(pp.Combiner, replica, col)
}
