// Package verify provides an out-of-band consistency checker for a
// packedhash.Array, built entirely against its public iterator so bugs
// in the bit-packing or reprobe arithmetic show up as checker failures
// rather than silent corruption. It never touches the array's hot CAS
// path, so it is meant for tests and post-run audits, not production
// call sites.
package verify

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/jellyhash/kmerhash/pkg/packedhash"
)

// Array is the subset of packedhash.Array's surface Check needs.
// IteratorAll returns the concrete *packedhash.Iterator, so any
// implementation must still be backed by a real packedhash.Array.
type Array interface {
	Size() uint64
	IteratorAll() *packedhash.Iterator
}

// Check walks every entry a's iterator produces and verifies two
// independent invariants using a bitset kept outside the array itself:
// every entry's home position is in range, and no two entries claim
// the same position (a reprobe or descriptor bug could otherwise
// silently alias two keys onto one slot). It returns the number of
// distinct entries seen and the sum of their values.
func Check(a Array) (entries int, total uint64, err error) {
	size := a.Size()
	seen := bitset.New(uint(size))

	it := a.IteratorAll()
	for it.Next() {
		e := it.Entry()
		if e.Pos >= size {
			return entries, total, fmt.Errorf("verify: entry for key %d reports out-of-range position %d (size %d)", e.Key, e.Pos, size)
		}
		if seen.Test(uint(e.Pos)) {
			return entries, total, fmt.Errorf("verify: position %d visited by more than one iterator entry", e.Pos)
		}
		seen.Set(uint(e.Pos))
		entries++
		total += e.Val
	}
	return entries, total, nil
}

// CheckTotal runs Check and additionally requires the summed value
// across every entry to equal want, the shape of the count-conservation
// property external callers (e.g. a test driving concurrent writers)
// already know the expected grand total for.
func CheckTotal(a Array, want uint64) error {
	_, total, err := Check(a)
	if err != nil {
		return err
	}
	if total != want {
		return fmt.Errorf("verify: summed value %d does not match expected total %d", total, want)
	}
	return nil
}
