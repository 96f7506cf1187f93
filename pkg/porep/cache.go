package porep

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/drgraph"
	"github.com/filecoin-project/go-porep/pkg/stacked"
)

// DefaultGraphCacheSize is how many parameter sets keep their graph resident.
const DefaultGraphCacheSize = 8

// graphCache shares stacked graphs between parameter sets with the same
// shape. Graphs are immutable, so one instance serves every caller.
type graphCache struct {
	graphs *lru.Cache
}

var graphs = newGraphCache(DefaultGraphCacheSize)

func newGraphCache(size int) *graphCache {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &graphCache{graphs: c}
}

// SetGraphCacheSize resizes the process graph cache, evicting the least
// recently used graphs if it shrinks.
func SetGraphCacheSize(size int) error {
	if size <= 0 {
		return xerrors.Errorf("graph cache size must be positive, got %d", size)
	}
	if evicted := graphs.graphs.Resize(size); evicted > 0 {
		log.Debugf("evicted %d cached graphs", evicted)
	}
	return nil
}

func graphKey(sp SetupParams) string {
	return fmt.Sprintf("%d/%d/%d/%d/%x", sp.Nodes, sp.BaseDegree, sp.ExpansionDegree, sp.Layers, sp.Seed[:])
}

func (c *graphCache) get(sp SetupParams) (*stacked.Graph, error) {
	key := graphKey(sp)
	if v, ok := c.graphs.Get(key); ok {
		return v.(*stacked.Graph), nil
	}

	base, err := drgraph.New(sp.Nodes, sp.BaseDegree, sp.Seed, drgraph.WithWorkers(sp.Workers))
	if err != nil {
		return nil, err
	}
	g, err := stacked.NewGraph(base, sp.ExpansionDegree, sp.Layers, stacked.WithWorkers(sp.Workers))
	if err != nil {
		return nil, err
	}
	c.graphs.Add(key, g)
	log.Debugf("cached stacked graph %s", g.ID())
	return g, nil
}
