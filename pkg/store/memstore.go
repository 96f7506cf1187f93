package store

import (
	"sync"

	"github.com/filecoin-project/go-porep/pkg/types"
)

// MemStore keeps every region in memory.
type MemStore struct {
	lk      sync.Mutex
	regions map[string]*memRegion
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{regions: make(map[string]*memRegion)}
}

func (s *MemStore) Create(name string, records uint64) (Region, error) {
	if err := checkRecords(name, records); err != nil {
		return nil, err
	}

	s.lk.Lock()
	defer s.lk.Unlock()

	r := &memRegion{name: name, buf: make([]byte, records*RecordSize)}
	s.regions[name] = r
	return r, nil
}

func (s *MemStore) Open(name string) (Region, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	r, ok := s.regions[name]
	if !ok {
		return nil, types.WrapStorage("open "+name, errNoRegion)
	}
	return r, nil
}

func (s *MemStore) Remove(name string) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	delete(s.regions, name)
	return nil
}

func (s *MemStore) Close() error {
	return nil
}

// memRegion shares one buffer between all handles. Writers and readers are
// ordered by the caller.
type memRegion struct {
	name string
	buf  []byte
}

func (r *memRegion) Name() string    { return r.name }
func (r *memRegion) Records() uint64 { return uint64(len(r.buf)) / RecordSize }

func (r *memRegion) ReadRange(start uint64, dst []byte) error {
	if err := checkRange(r, start, len(dst)); err != nil {
		return err
	}
	copy(dst, r.buf[start*RecordSize:])
	return nil
}

func (r *memRegion) WriteRange(start uint64, src []byte) error {
	if err := checkRange(r, start, len(src)); err != nil {
		return err
	}
	copy(r.buf[start*RecordSize:], src)
	return nil
}

func (r *memRegion) Close() error { return nil }
