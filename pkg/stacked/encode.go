package stacked

import (
	"context"

	"go.opencensus.io/trace"

	"github.com/filecoin-project/go-porep/pkg/hasher"
	"github.com/filecoin-project/go-porep/pkg/metrics"
	"github.com/filecoin-project/go-porep/pkg/types"
	"github.com/filecoin-project/go-porep/pkg/util/paralle"
)

var (
	labeledNodes = metrics.NewInt64Counter("stacked/labeled_nodes", "Number of node labels computed")
	layerTimer   = metrics.NewTimerMs("stacked/layer", "Duration of labelling and combining one layer")
)

// Encode seals data through every layer of g. Layer l is computed in full,
// handed to sink, and only then combined into the running replica. The
// returned replica is enc_{L-1}.
func Encode(ctx context.Context, g *Graph, h hasher.Hasher, c Combiner, id types.ReplicaID, data []byte, sink LayerSink) ([]byte, error) {
	ctx, span := trace.StartSpan(ctx, "stacked.Encode")
	defer span.End()

	if err := checkArena(g, data, "data"); err != nil {
		return nil, err
	}
	if err := checkBlocks(g, c, data); err != nil {
		return nil, err
	}

	replica := make([]byte, len(data))
	copy(replica, data)
	err := run(ctx, g, h, id, sink, func(labels []byte) error {
		return mix(g, replica, labels, c.Combine)
	})
	if err != nil {
		return nil, err
	}
	return replica, nil
}

// Decode recovers the data sealed into replica. Labels do not depend on the
// data, so they are regenerated and peeled off layer by layer.
func Decode(ctx context.Context, g *Graph, h hasher.Hasher, c Combiner, id types.ReplicaID, replica []byte) ([]byte, error) {
	ctx, span := trace.StartSpan(ctx, "stacked.Decode")
	defer span.End()

	if err := checkArena(g, replica, "replica"); err != nil {
		return nil, err
	}
	if err := checkBlocks(g, c, replica); err != nil {
		return nil, err
	}

	data := make([]byte, len(replica))
	copy(data, replica)
	err := run(ctx, g, h, id, nil, func(labels []byte) error {
		return mix(g, data, labels, c.Uncombine)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func run(ctx context.Context, g *Graph, h hasher.Hasher, id types.ReplicaID, sink LayerSink, apply func(labels []byte) error) error {
	sw := layerTimer.Start(ctx)
	return Labels(ctx, g, h, id, LayerSinkFunc(func(ctx context.Context, layer int, labels []byte) error {
		labeledNodes.Inc(ctx, int64(g.Size()))
		if sink != nil {
			if err := sink.CommitLayer(ctx, layer, labels); err != nil {
				return err
			}
		}
		if err := apply(labels); err != nil {
			return err
		}
		sw.Stop(ctx)
		log.Infof("layer %d of %d done", layer+1, g.Layers())
		sw = layerTimer.Start(ctx)
		return nil
	}))
}

// mix applies op(label, value) to every node of arena, in parallel ranges.
func mix(g *Graph, arena, labels []byte, op func(label, v types.Domain) types.Domain) error {
	return paralle.ForEachRange(g.Size(), g.Workers(), func(r paralle.Range) error {
		var label, v types.Domain
		for i := r.Start; i < r.End; i++ {
			copy(label[:], types.NodeAt(labels, i))
			dst := types.NodeAt(arena, i)
			copy(v[:], dst)
			out := op(label, v)
			copy(dst, out[:])
		}
		return nil
	})
}

func checkArena(g *Graph, arena []byte, what string) error {
	want := g.Size() * types.NodeSize
	if uint64(len(arena)) != want {
		return types.NewInvalidParameters("%s must be %d bytes, got %d", what, want, len(arena))
	}
	return nil
}

func checkBlocks(g *Graph, c Combiner, arena []byte) error {
	return paralle.ForEachRange(g.Size(), g.Workers(), func(r paralle.Range) error {
		var v types.Domain
		for i := r.Start; i < r.End; i++ {
			copy(v[:], types.NodeAt(arena, i))
			if err := c.Check(v); err != nil {
				return err
			}
		}
		return nil
	})
}
