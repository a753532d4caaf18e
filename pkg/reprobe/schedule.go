// Package reprobe computes the fixed offset sequence used by the packed
// array both to resolve collisions during insertion and, stored inside a
// large continuation slot, to point back one hop toward the chain's home.
package reprobe

import "fmt"

// Schedule is an immutable, monotonically increasing sequence of slot
// offsets, indexed by reprobe step.
type Schedule struct {
	Offsets []uint64
	Limit   int
}

// New builds a schedule of triangular-number offsets for steps 0..limit
// inclusive: offsets[i] = (i+1)(i+2)/2. Triangular growth keeps early
// reprobes close to home (cheap cache behavior under low load) while
// still guaranteeing every step lands on a distinct offset mod any
// power-of-two table size greater than limit+1.
func New(limit int) (*Schedule, error) {
	if limit < 0 {
		return nil, fmt.Errorf("reprobe: limit must be >= 0, got %d", limit)
	}
	offsets := make([]uint64, limit+1)
	for i := 0; i <= limit; i++ {
		n := uint64(i + 1)
		offsets[i] = n * (n + 1) / 2
	}
	return &Schedule{Offsets: offsets, Limit: limit}, nil
}

// FromOffsets wraps a previously computed offset sequence, e.g. one read
// back from a raw dump header, without regenerating it.
func FromOffsets(offsets []uint64) *Schedule {
	return &Schedule{Offsets: offsets, Limit: len(offsets) - 1}
}

// At returns the offset for reprobe step i, or 0 and false if i exceeds
// the schedule's limit.
func (s *Schedule) At(i int) (uint64, bool) {
	if i < 0 || i > s.Limit {
		return 0, false
	}
	return s.Offsets[i], true
}
