package paralle

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Range is a half-open interval of indices.
type Range struct {
	Start, End uint64
}

// Len returns End-Start.
func (r Range) Len() uint64 { return r.End - r.Start }

// Ranges splits [0, n) into at most parts contiguous ranges of near equal size.
func Ranges(n uint64, parts int) []Range {
	if parts < 1 {
		parts = 1
	}
	if uint64(parts) > n {
		parts = int(n)
	}
	out := make([]Range, 0, parts)
	if n == 0 {
		return out
	}
	step := n / uint64(parts)
	rem := n % uint64(parts)
	var start uint64
	for k := 0; k < parts; k++ {
		size := step
		if uint64(k) < rem {
			size++
		}
		out = append(out, Range{Start: start, End: start + size})
		start += size
	}
	return out
}

// ForEachRange splits [0, n) across workers goroutines and returns the first
// error. workers below one selects runtime.NumCPU().
func ForEachRange(n uint64, workers int, fn func(Range) error) error {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	var eg errgroup.Group
	for _, r := range Ranges(n, workers) {
		r := r
		eg.Go(func() error {
			return fn(r)
		})
	}
	return eg.Wait()
}
