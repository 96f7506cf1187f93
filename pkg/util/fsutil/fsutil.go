// Package fsutil queries the filesystem backing a store directory.
package fsutil

// FsStat is the space of one filesystem, in bytes.
type FsStat struct {
	Capacity  int64
	Available int64
}

// Fits reports whether size more bytes fit into the available space.
func (s FsStat) Fits(size int64) bool {
	return size <= s.Available
}
