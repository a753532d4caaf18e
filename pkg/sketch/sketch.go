// Package sketch wires a Bloom filter in front of a packed array as an
// optional first-touch accelerator: a producer can ask whether a key
// has possibly been added before without walking the reprobe chain. A
// false positive is harmless -- the caller always falls through to the
// array's real claim/reprobe path -- so the filter only ever saves
// work, never changes an outcome.
package sketch

import (
	"encoding/binary"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is a Bloom filter over the uint64 key space, guarded by a
// mutex: bloom.BloomFilter mutates its backing bitset in place with no
// locking of its own, so it is not safe for concurrent Add/Test without
// this, and Array.Add calls Add from every writer goroutine.
type Filter struct {
	mu sync.Mutex
	f  *bloom.BloomFilter
}

// New builds a filter sized for expectedKeys distinct keys at the given
// target false-positive rate.
func New(expectedKeys uint, falsePositiveRate float64) *Filter {
	return &Filter{f: bloom.NewWithEstimates(expectedKeys, falsePositiveRate)}
}

// Add records key as seen.
func (s *Filter) Add(key uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	s.mu.Lock()
	s.f.Add(buf[:])
	s.mu.Unlock()
}

// MaybeSeen reports whether key might have been added before. A false
// result is a hard guarantee of "never added"; a true result may be a
// false positive.
func (s *Filter) MaybeSeen(key uint64) bool {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Test(buf[:])
}
