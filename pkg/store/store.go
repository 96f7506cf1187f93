// Package store provides the layer store: named regions of fixed 32-byte
// records addressable by index in O(1).
package store

import (
	"math"

	logging "github.com/ipfs/go-log/v2"

	"github.com/filecoin-project/go-porep/pkg/types"
)

var log = logging.Logger("store")

// RecordSize is the size of one record of a region.
const RecordSize = types.NodeSize

// Region is a flat sequence of fixed-size records. Record i lives at byte
// offset i*RecordSize.
type Region interface {
	Name() string
	Records() uint64
	// ReadRange fills dst with the records starting at start. len(dst) must
	// be a multiple of RecordSize.
	ReadRange(start uint64, dst []byte) error
	// WriteRange stores src as the records starting at start.
	WriteRange(start uint64, src []byte) error
	Close() error
}

// Store hands out regions by name.
type Store interface {
	// Create allocates a region of records entries, replacing any region
	// with the same name.
	Create(name string, records uint64) (Region, error)
	// Open reattaches to an existing region.
	Open(name string) (Region, error)
	Remove(name string) error
	Close() error
}

// ReadRecord returns record i of r.
func ReadRecord(r Region, i uint64) (types.Domain, error) {
	var d types.Domain
	err := r.ReadRange(i, d[:])
	return d, err
}

// WriteRecord stores v as record i of r.
func WriteRecord(r Region, i uint64, v types.Domain) error {
	return r.WriteRange(i, v[:])
}

func checkRange(r Region, start uint64, n int) error {
	if n%RecordSize != 0 {
		return types.NewInvalidParameters("buffer of %d bytes is not a whole number of records", n)
	}
	end := start + uint64(n/RecordSize)
	if end > r.Records() || end < start {
		return types.NewOutOfBounds(r.Name()+" record", end-1, r.Records())
	}
	return nil
}

// MaxRecords is the largest region whose byte size fits an int64.
const MaxRecords = math.MaxInt64 / RecordSize

func checkRecords(name string, records uint64) error {
	if records > MaxRecords {
		return types.NewInvalidParameters("region %s of %d records exceeds %d", name, records, uint64(MaxRecords))
	}
	return nil
}
