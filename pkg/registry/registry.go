// Package registry keeps a record of every sealed replica, its parameters
// and its commitments, in a datastore.
package registry

import (
	"context"
	"encoding/hex"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	badger "github.com/ipfs/go-ds-badger2"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/encoding"
	"github.com/filecoin-project/go-porep/pkg/porep"
	"github.com/filecoin-project/go-porep/pkg/types"
)

var log = logging.Logger("registry")

// Datastore types accepted by Open.
const (
	MapDSType    = "mapds"
	BadgerDSType = "badgerds"
)

// ErrNotFound is returned for a replica that was never recorded.
var ErrNotFound = xerrors.New("replica not found")

var replicasPrefix = ds.NewKey("/replicas")

// Record describes one sealed replica.
type Record struct {
	ReplicaID types.ReplicaID
	Header    porep.ParamsHeader
	Tau       porep.Tau
	// SealedAt is a unix timestamp in seconds.
	SealedAt int64
}

// Registry stores records keyed by replica id.
type Registry struct {
	root    ds.Batching
	records ds.Datastore
}

// New wraps dstore. Records live under /replicas.
func New(dstore ds.Batching) *Registry {
	return &Registry{
		root:    dstore,
		records: namespace.Wrap(dstore, replicasPrefix),
	}
}

// Open returns a registry on a datastore of the given type. path is ignored
// for the in-memory type.
func Open(typ, path string) (*Registry, error) {
	switch typ {
	case MapDSType:
		return New(dssync.MutexWrap(ds.NewMapDatastore())), nil
	case BadgerDSType:
		opts := badger.DefaultOptions
		dstore, err := badger.NewDatastore(path, &opts)
		if err != nil {
			return nil, types.WrapStorage("opening registry", err)
		}
		log.Debugf("opened registry at %s", path)
		return New(dstore), nil
	default:
		return nil, types.NewInvalidParameters("unknown registry type %q", typ)
	}
}

func recordKey(id types.ReplicaID) ds.Key {
	return ds.NewKey(hex.EncodeToString(id[:]))
}

// Put records rec, replacing any earlier record of the same replica.
func (r *Registry) Put(ctx context.Context, rec *Record) error {
	raw, err := encoding.Encode(rec)
	if err != nil {
		return xerrors.Errorf("encoding record: %w", err)
	}
	if err := r.records.Put(ctx, recordKey(rec.ReplicaID), raw); err != nil {
		return types.WrapStorage("putting record", err)
	}
	return nil
}

// Get returns the record of id.
func (r *Registry) Get(ctx context.Context, id types.ReplicaID) (*Record, error) {
	raw, err := r.records.Get(ctx, recordKey(id))
	if err == ds.ErrNotFound {
		return nil, xerrors.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, types.WrapStorage("getting record", err)
	}
	return decodeRecord(raw)
}

// Has reports whether id was recorded.
func (r *Registry) Has(ctx context.Context, id types.ReplicaID) (bool, error) {
	ok, err := r.records.Has(ctx, recordKey(id))
	if err != nil {
		return false, types.WrapStorage("looking up record", err)
	}
	return ok, nil
}

// Delete drops the record of id. Deleting a missing record is not an error.
func (r *Registry) Delete(ctx context.Context, id types.ReplicaID) error {
	if err := r.records.Delete(ctx, recordKey(id)); err != nil {
		return types.WrapStorage("deleting record", err)
	}
	return nil
}

// List returns every record, ordered by replica id.
func (r *Registry) List(ctx context.Context) ([]*Record, error) {
	res, err := r.records.Query(ctx, query.Query{
		Orders: []query.Order{query.OrderByKey{}},
	})
	if err != nil {
		return nil, types.WrapStorage("querying records", err)
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, types.WrapStorage("querying records", err)
	}

	out := make([]*Record, 0, len(entries))
	for _, e := range entries {
		rec, err := decodeRecord(e.Value)
		if err != nil {
			return nil, xerrors.Errorf("record %s: %w", e.Key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the underlying datastore.
func (r *Registry) Close() error {
	return r.root.Close()
}

func decodeRecord(raw []byte) (*Record, error) {
	var rec Record
	if err := encoding.Decode(raw, &rec); err != nil {
		return nil, xerrors.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}
