package packedhash

import (
	"sync/atomic"

	"github.com/jellyhash/kmerhash/pkg/offsets"
)

// slotRef identifies a physical slot that has just been claimed, and
// which of the two interpretations (home vs. large continuation) it was
// claimed under.
type slotRef struct {
	id    uint64
	large bool
	base  int
	desc  offsets.Slot
}

// claim attempts to own a slot for keyData starting at home, following
// the reprobe schedule on contention. For normal (non-large) claims the
// stored reprobe code is biased by one so the home slot's code reads as
// 1; large continuations store the raw 0-based step. This mirrors the
// source's reprobe-code convention exactly, since the code is later used
// as a back-pointer when reconstructing chains.
func (a *Array) claim(home, keyData uint64, large bool) (slotRef, error) {
	reprobeStep := 0
	cid := home
	for {
		idx := int(cid % uint64(a.layout.BlockLen))
		normal := a.layout.Normal[idx]
		active := normal
		if large {
			active = a.layout.Large[idx]
		}
		base := a.wordBase(cid)

		var data uint64
		if large {
			data = uint64(reprobeStep)
		} else {
			data = keyData | (uint64(reprobeStep+1) << a.storedKeyBits)
		}
		logical := data | (uint64(1) << active.Key.DataWidth)
		if large {
			logical |= uint64(1) << (active.Key.DataWidth + 1)
		}

		if a.claimWords(base, normal.Key.Overall, active.Key.Overall, logical) {
			return slotRef{id: cid, large: large, base: base, desc: active}, nil
		}

		reprobeStep++
		if reprobeStep > a.reprobeLimit {
			return slotRef{}, ErrTableFull
		}
		off, _ := a.reprobes.At(reprobeStep)
		cid = (home + off) & a.sizeMask
	}
}

// claimWords performs the (up to) two-word CAS claim sequence: a slot's
// bits are free only when they read zero under the wider of the two
// possible interpretations (free), so a large claim cannot mistake a
// still-live normal entry's unused high bits for free space. If the
// second word's CAS is attempted and lost, the first word's claim is
// not undone -- per spec this is an accepted, rare leak rather than a
// correctness bug.
func (a *Array) claimWords(base int, free, active offsets.Window, logical uint64) bool {
	aw0, aw1 := active.Pack(logical)
	if !a.casWord(base+free.Word1, free.Mask1, active.Mask1, aw0) {
		return false
	}
	if active.Word2 >= 0 {
		if !a.casWord(base+free.Word2, free.Mask2, active.Mask2, aw1) {
			return false
		}
	}
	return true
}

func (a *Array) casWord(idx int, freeMask, equalMask, bits uint64) bool {
	ptr := a.block.Word(idx)
	for {
		old := atomic.LoadUint64(ptr)
		if old&freeMask == 0 {
			if atomic.CompareAndSwapUint64(ptr, old, old|bits) {
				return true
			}
			continue
		}
		return old&equalMask == bits
	}
}

// increment adds val into slot's value field via a CAS loop, returning
// the carry (already scaled to an integer count) that overflowed the
// field's width.
func (a *Array) increment(slot slotRef, val uint64) uint64 {
	vw := slot.desc.Val
	word0Width := vw.Word0Width()

	carry := addValWord(a.block.Word(slot.base+vw.Word1), val, vw.Shift1, vw.Mask1)
	carry >>= word0Width
	if carry != 0 && vw.Word2 >= 0 {
		word1Width := vw.Word1Width()
		carry = addValWord(a.block.Word(slot.base+vw.Word2), carry, 0, vw.Mask2)
		carry >>= word1Width
	}
	return carry
}

// decrement undoes a previously applied increment of val, used to back
// out a chain level whose overflow recursion subsequently failed.
func (a *Array) decrement(slot slotRef, val uint64) {
	vw := slot.desc.Val
	subtrahend := (uint64(1) << vw.Width) - val
	a.increment(slot, subtrahend)
}

// addValWord performs one CAS-looped add against a single word's value
// sub-field and returns the raw carry (the bits of the new value that
// fell outside mask, still left-shifted into place).
func addValWord(ptr *uint64, val uint64, shift uint, mask uint64) uint64 {
	for {
		old := atomic.LoadUint64(ptr)
		cur := (old & mask) >> shift
		nval := cur + val
		nw := (old &^ mask) | ((nval << shift) & mask)
		if atomic.CompareAndSwapUint64(ptr, old, nw) {
			return nval &^ (mask >> shift)
		}
	}
}
