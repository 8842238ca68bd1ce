// Package mmap maps files read-write and shared, so that every process
// mapping the same file sees the same physical pages.
package mmap

type Options uint

const (
	// Prefault populates the whole mapping up front instead of faulting pages
	// in on first touch. Maps to MAP_POPULATE on Linux; ignored elsewhere.
	Prefault Options = 1 << 0

	// RandomAccess is a hint that read-ahead is not useful. Maps to
	// MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 1
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}
