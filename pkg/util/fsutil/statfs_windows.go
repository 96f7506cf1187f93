package fsutil

import "golang.org/x/xerrors"

// ErrUnsupported is returned where the filesystem cannot be queried.
var ErrUnsupported = xerrors.New("statfs not supported on this platform")

func Statfs(path string) (FsStat, error) {
	return FsStat{}, ErrUnsupported
}
