package store

import (
	"os"
	"path/filepath"
	"strings"

	fallocate "github.com/detailyang/go-fallocate"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/types"
	"github.com/filecoin-project/go-porep/pkg/util/fsutil"
)

var errNoRegion = xerrors.New("no such region")

const regionExt = ".dat"

// DiskStore keeps one preallocated file per region under a directory.
type DiskStore struct {
	dir string
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore uses dir, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, types.WrapStorage("create store dir", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", types.NewInvalidParameters("bad region name %q", name)
	}
	return filepath.Join(s.dir, name+regionExt), nil
}

func (s *DiskStore) Create(name string, records uint64) (Region, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	if err := checkRecords(name, records); err != nil {
		return nil, err
	}
	size := int64(records * RecordSize)
	if st, err := fsutil.Statfs(s.dir); err == nil && !st.Fits(size) {
		return nil, types.WrapStorage("create "+name, xerrors.Errorf("need %d bytes, %d available", size, st.Available))
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, types.WrapStorage("create "+name, err)
	}

	if size > 0 {
		if err := fallocate.Fallocate(f, 0, size); err != nil {
			log.Warnf("fallocate %s failed, extending with truncate: %s", p, err)
			if err := f.Truncate(size); err != nil {
				_ = f.Close()
				return nil, types.WrapStorage("allocate "+name, err)
			}
		}
	}
	return &fileRegion{name: name, f: f, records: records}, nil
}

func (s *DiskStore) Open(name string) (Region, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			err = errNoRegion
		}
		return nil, types.WrapStorage("open "+name, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, types.WrapStorage("stat "+name, err)
	}
	if st.Size()%RecordSize != 0 {
		_ = f.Close()
		return nil, types.WrapStorage("open "+name, xerrors.Errorf("size %d is not a whole number of records", st.Size()))
	}
	return &fileRegion{name: name, f: f, records: uint64(st.Size()) / RecordSize}, nil
}

func (s *DiskStore) Remove(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return types.WrapStorage("remove "+name, err)
	}
	return nil
}

func (s *DiskStore) Close() error {
	return nil
}

type fileRegion struct {
	name    string
	f       *os.File
	records uint64
}

func (r *fileRegion) Name() string    { return r.name }
func (r *fileRegion) Records() uint64 { return r.records }

func (r *fileRegion) ReadRange(start uint64, dst []byte) error {
	if err := checkRange(r, start, len(dst)); err != nil {
		return err
	}
	if _, err := r.f.ReadAt(dst, int64(start*RecordSize)); err != nil {
		return types.WrapStorage("read "+r.name, err)
	}
	return nil
}

func (r *fileRegion) WriteRange(start uint64, src []byte) error {
	if err := checkRange(r, start, len(src)); err != nil {
		return err
	}
	if _, err := r.f.WriteAt(src, int64(start*RecordSize)); err != nil {
		return types.WrapStorage("write "+r.name, err)
	}
	return nil
}

func (r *fileRegion) Close() error {
	if err := r.f.Close(); err != nil {
		log.Errorf("closing region %s: %s", r.name, err)
		return types.WrapStorage("close "+r.name, err)
	}
	return nil
}
