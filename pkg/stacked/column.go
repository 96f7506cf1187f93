package stacked

import (
	"github.com/filecoin-project/go-porep/pkg/hasher"
	"github.com/filecoin-project/go-porep/pkg/types"
)

// Column holds the labels of one node across every layer, Rows[l] being
// the label in layer l.
type Column struct {
	Index types.NodeIndex
	Rows  []types.Domain
}

// Hash commits the whole column: H(row_0 ‖ … ‖ row_{L-1}).
func (c Column) Hash(h hasher.Hasher) types.Domain {
	parts := make([][]byte, len(c.Rows))
	for l := range c.Rows {
		parts[l] = c.Rows[l][:]
	}
	return h.Hash(parts...)
}

// EncodeNode seals one data block with the column of its node.
func EncodeNode(c Combiner, data types.Domain, col Column) (types.Domain, error) {
	if err := c.Check(data); err != nil {
		return types.Domain{}, err
	}
	v := data
	for _, label := range col.Rows {
		v = c.Combine(label, v)
	}
	return v, nil
}

// DecodeNode recovers one data block from its replica block and column.
func DecodeNode(c Combiner, replica types.Domain, col Column) (types.Domain, error) {
	if err := c.Check(replica); err != nil {
		return types.Domain{}, err
	}
	v := replica
	for l := len(col.Rows) - 1; l >= 0; l-- {
		v = c.Uncombine(col.Rows[l], v)
	}
	return v, nil
}
