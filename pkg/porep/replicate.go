package porep

import (
	"context"
	"fmt"

	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/merkle"
	"github.com/filecoin-project/go-porep/pkg/metrics"
	"github.com/filecoin-project/go-porep/pkg/stacked"
	"github.com/filecoin-project/go-porep/pkg/store"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// Region names inside a replica store.
const (
	TreeDName     = "tree-d"
	TreeRLastName = "tree-r-last"
)

// LayerTreeName names the region holding the label tree of layer l.
func LayerTreeName(l int) string {
	return fmt.Sprintf("layer-%d", l)
}

var sealTimer = metrics.NewTimerMs("porep/seal", "Duration of sealing one replica")

// Aux is the private output of sealing: every tree, each backed by a region
// of the store. Leaves of TreeD are the data and leaves of TreeRLast are the
// replica.
type Aux struct {
	Layers    []*merkle.Tree
	TreeD     *merkle.Tree
	TreeRLast *merkle.Tree
}

// Replica reads the sealed replica back from TreeRLast.
func (a *Aux) Replica() ([]byte, error) {
	return readLeaves(a.TreeRLast)
}

// Data reads the unsealed data back from TreeD.
func (a *Aux) Data() ([]byte, error) {
	return readLeaves(a.TreeD)
}

// Close releases every region.
func (a *Aux) Close() error {
	var first error
	for _, t := range append(append([]*merkle.Tree{}, a.Layers...), a.TreeD, a.TreeRLast) {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func readLeaves(t *merkle.Tree) ([]byte, error) {
	buf := make([]byte, t.Leaves()*types.NodeSize)
	if err := t.Region().ReadRange(0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Replicate seals data for id: it encodes every layer, commits each label
// layer as it completes, then commits the data and the replica. All trees
// are written into st.
func Replicate(ctx context.Context, pp *PublicParams, id types.ReplicaID, data []byte, st store.Store) (*Tau, *Aux, error) {
	ctx, span := trace.StartSpan(ctx, "porep.Replicate")
	defer span.End()

	sw := sealTimer.Start(ctx)
	defer sw.Stop(ctx)

	g := pp.Graph
	if uint64(len(data)) != pp.SealedSize() {
		return nil, nil, types.NewInvalidParameters("data must be %d bytes, got %d", pp.SealedSize(), len(data))
	}
	log.Infof("sealing replica %s: %d nodes, %d layers", id, g.Size(), g.Layers())

	aux := &Aux{Layers: make([]*merkle.Tree, 0, g.Layers())}
	regions := &regionLog{st: st}
	fail := func(err error) (*Tau, *Aux, error) {
		if cerr := aux.Close(); cerr != nil {
			log.Errorf("closing trees after failed seal: %s", cerr)
		}
		regions.removeAll()
		return nil, nil, err
	}

	var err error
	if aux.TreeD, err = commitTree(ctx, pp, regions, TreeDName, data); err != nil {
		return fail(err)
	}

	sink := layerCommitter{pp: pp, regions: regions, aux: aux}
	replica, err := stacked.Encode(ctx, g, pp.Hasher, pp.Combiner, id, data, &sink)
	if err != nil {
		return fail(err)
	}

	if aux.TreeRLast, err = commitTree(ctx, pp, regions, TreeRLastName, replica); err != nil {
		return fail(err)
	}

	tau := TauFromAux(pp, aux)
	log.Infof("sealed replica %s: comm_r %s", id, tau.CommR)
	return tau, aux, nil
}

// OpenAux reattaches to the trees of a replica sealed into st.
func OpenAux(pp *PublicParams, st store.Store) (*Aux, error) {
	aux := &Aux{}
	open := func(name string) (*merkle.Tree, error) {
		r, err := st.Open(name)
		if err != nil {
			return nil, err
		}
		t, err := merkle.Open(pp.Hasher, pp.Nodes(), r)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		return t, nil
	}

	var err error
	for l := 0; l < pp.Layers(); l++ {
		t, err := open(LayerTreeName(l))
		if err != nil {
			_ = aux.Close()
			return nil, err
		}
		aux.Layers = append(aux.Layers, t)
	}
	if aux.TreeD, err = open(TreeDName); err != nil {
		_ = aux.Close()
		return nil, err
	}
	if aux.TreeRLast, err = open(TreeRLastName); err != nil {
		_ = aux.Close()
		return nil, err
	}
	return aux, nil
}

// TauFromAux recomputes the commitments from reopened trees.
func TauFromAux(pp *PublicParams, aux *Aux) *Tau {
	tau := &Tau{
		CommD:      aux.TreeD.Root(),
		CommRLast:  aux.TreeRLast.Root(),
		LayerRoots: make([]types.Domain, len(aux.Layers)),
	}
	for l, t := range aux.Layers {
		tau.LayerRoots[l] = t.Root()
	}
	tau.CommR = ComputeCommR(pp.Hasher, tau.LayerRoots, tau.CommRLast)
	return tau
}

// regionLog remembers the regions a seal created so a failed seal can drop
// them again.
type regionLog struct {
	st    store.Store
	names []string
}

func (r *regionLog) create(name string, records uint64) (store.Region, error) {
	// a failed Create may still leave a file behind
	r.names = append(r.names, name)
	return r.st.Create(name, records)
}

func (r *regionLog) removeAll() {
	for _, name := range r.names {
		if err := r.st.Remove(name); err != nil {
			log.Errorf("removing region %s after failed seal: %s", name, err)
		}
	}
	r.names = nil
}

func commitTree(ctx context.Context, pp *PublicParams, regions *regionLog, name string, leaves []byte) (*merkle.Tree, error) {
	region, err := regions.create(name, merkle.Records(pp.Nodes()))
	if err != nil {
		return nil, err
	}
	t, err := merkle.Commit(ctx, pp.Hasher, leaves, region, pp.Workers)
	if err != nil {
		_ = region.Close()
		return nil, xerrors.Errorf("commit %s: %w", name, err)
	}
	return t, nil
}

// layerCommitter commits each label layer into its own tree.
type layerCommitter struct {
	pp      *PublicParams
	regions *regionLog
	aux     *Aux
}

func (c *layerCommitter) CommitLayer(ctx context.Context, layer int, labels []byte) error {
	t, err := commitTree(ctx, c.pp, c.regions, LayerTreeName(layer), labels)
	if err != nil {
		return err
	}
	c.aux.Layers = append(c.aux.Layers, t)
	return nil
}
