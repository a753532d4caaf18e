package packedhash

// Entry is one resolved (key, value) pair produced by an Iterator,
// satisfying the external iterator contract consumed by a priority-heap
// merge collaborator: Next/Key/Val/Pos.
type Entry struct {
	Key uint64
	Val uint64
	Pos uint64
}

// Iterator walks a half-open slot range [start, end), resolving each
// home slot it encounters into a reconstructed original key and its
// full chain-summed value. Iterators over disjoint ranges may run
// concurrently so long as no writer is active; concurrent iteration
// during writes is unspecified.
type Iterator struct {
	a    *Array
	next uint64
	end  uint64
	cur  Entry
}

// IteratorAll returns an iterator over every slot.
func (a *Array) IteratorAll() *Iterator {
	return &Iterator{a: a, next: 0, end: a.size}
}

// IteratorSlice returns an iterator over the sliceNumber-th of
// numberOfSlices equal, contiguous slot ranges, for parallel dumping.
func (a *Array) IteratorSlice(sliceNumber, numberOfSlices int) *Iterator {
	sliceSize := a.size / uint64(numberOfSlices)
	start := uint64(sliceNumber) * sliceSize
	end := start + sliceSize
	if sliceNumber == numberOfSlices-1 {
		end = a.size
	}
	return &Iterator{a: a, next: start, end: end}
}

// Next advances to the next resolvable home slot, returning false once
// the range is exhausted.
func (it *Iterator) Next() bool {
	for it.next < it.end {
		id := it.next
		it.next++
		storedKey, val, ok := it.a.GetKeyValFull(id)
		if !ok {
			continue
		}
		// A key displaced by reprobe step r stores code r+1; its hash's
		// low bits are the home slot, not id.
		home := id
		nd := it.a.layout.Normal[int(id%uint64(it.a.layout.BlockLen))]
		codeMask := (uint64(1) << it.a.layout.ReprobeBits) - 1
		code := (it.a.readField(it.a.wordBase(id), nd.Key.Overall) >> it.a.storedKeyBits) & codeMask
		if code > 1 {
			off, _ := it.a.reprobes.At(int(code - 1))
			home = (id - off) & it.a.sizeMask
		}
		h := (storedKey << it.a.logSize) | home
		it.cur = Entry{Key: it.a.matrix.Unhash(h), Val: val, Pos: id}
		return true
	}
	return false
}

// Entry returns the pair produced by the most recent successful Next.
func (it *Iterator) Entry() Entry { return it.cur }
