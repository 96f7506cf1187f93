package stacked

import (
	"context"
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/hasher"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// ErrMissingParentData reports a parent index that falls outside the labels
// computed so far. It wraps types.ErrOutOfBounds and marks a defect.
var ErrMissingParentData = xerrors.Errorf("missing parent data: %w", types.ErrOutOfBounds)

// LayerSink receives every layer of labels once it is complete. labels is
// only valid for the duration of the call.
type LayerSink interface {
	CommitLayer(ctx context.Context, layer int, labels []byte) error
}

// LayerSinkFunc adapts a function to LayerSink.
type LayerSinkFunc func(ctx context.Context, layer int, labels []byte) error

func (f LayerSinkFunc) CommitLayer(ctx context.Context, layer int, labels []byte) error {
	return f(ctx, layer, labels)
}

const labelPrefix = types.NodeSize + 16

// ComputeLabel hashes the label of node in layer:
//
//	H(replica_id ‖ le64(layer) ‖ le64(node) ‖ base labels ‖ expansion labels)
func ComputeLabel(h hasher.Hasher, id types.ReplicaID, layer int, node types.NodeIndex, base, expansion []types.Domain) types.Domain {
	buf := make([]byte, labelPrefix, labelPrefix+(len(base)+len(expansion))*types.NodeSize)
	putLabelPrefix(buf, id, layer, node)
	for _, b := range base {
		buf = append(buf, b[:]...)
	}
	for _, e := range expansion {
		buf = append(buf, e[:]...)
	}
	return h.Hash(buf)
}

func putLabelPrefix(buf []byte, id types.ReplicaID, layer int, node types.NodeIndex) {
	copy(buf, id[:])
	binary.LittleEndian.PutUint64(buf[types.NodeSize:], uint64(layer))
	binary.LittleEndian.PutUint64(buf[types.NodeSize+8:], node)
}

// labeler owns the scratch space of one sequential labeling pass.
type labeler struct {
	g   *Graph
	h   hasher.Hasher
	id  types.ReplicaID
	buf []byte
	bp  []types.NodeIndex
	ep  []types.NodeIndex
}

func newLabeler(g *Graph, h hasher.Hasher, id types.ReplicaID) *labeler {
	return &labeler{
		g:   g,
		h:   h,
		id:  id,
		buf: make([]byte, labelPrefix, labelPrefix+(g.BaseDegree()+g.ExpansionDegree())*types.NodeSize),
		bp:  make([]types.NodeIndex, 0, g.BaseDegree()),
		ep:  make([]types.NodeIndex, 0, g.ExpansionDegree()),
	}
}

// layer computes every label of layer into cur, reading expansion parents
// from prev. Nodes are visited in increasing order: base parents of node i
// are always below i, so they are already in cur.
func (lb *labeler) layer(layer int, cur, prev []byte) error {
	n := lb.g.Size()
	for i := types.NodeIndex(0); i < n; i++ {
		var err error
		if lb.bp, err = lb.g.base.ParentsInto(i, lb.bp[:0]); err != nil {
			return err
		}
		if lb.ep, err = lb.g.ExpansionParentsInto(layer, i, lb.ep[:0]); err != nil {
			return err
		}

		buf := lb.buf[:labelPrefix]
		putLabelPrefix(buf, lb.id, layer, i)
		for _, p := range lb.bp {
			if p >= i {
				return xerrors.Errorf("layer %d node %d base parent %d: %w", layer, i, p, ErrMissingParentData)
			}
			buf = append(buf, types.NodeAt(cur, p)...)
		}
		for _, p := range lb.ep {
			if p >= n || prev == nil {
				return xerrors.Errorf("layer %d node %d expansion parent %d: %w", layer, i, p, ErrMissingParentData)
			}
			buf = append(buf, types.NodeAt(prev, p)...)
		}
		lb.buf = buf

		label := lb.h.Hash(buf)
		copy(types.NodeAt(cur, i), label[:])
	}
	return nil
}

// Labels generates every layer of labels for id and hands each one to sink
// in order. Only two layers are resident at a time. ctx is checked between
// layers.
func Labels(ctx context.Context, g *Graph, h hasher.Hasher, id types.ReplicaID, sink LayerSink) error {
	n := g.Size()
	lb := newLabeler(g, h, id)

	var prev []byte
	cur := make([]byte, n*types.NodeSize)
	for l := 0; l < g.Layers(); l++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := lb.layer(l, cur, prev); err != nil {
			return err
		}
		if err := sink.CommitLayer(ctx, l, cur); err != nil {
			return xerrors.Errorf("commit layer %d: %w", l, err)
		}
		if prev == nil && l+1 < g.Layers() {
			prev = make([]byte, n*types.NodeSize)
		}
		prev, cur = cur, prev
	}
	return nil
}
