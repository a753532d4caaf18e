package packedhash

// GetKeyValFull resolves the stored key fragment at a home slot and the
// full summed value across its entire overflow chain. It returns false
// if the slot at id is empty or is itself a large continuation (the
// caller should skip it during iteration; the slot will be visited, and
// its chain resolved, when iteration reaches its home).
func (a *Array) GetKeyValFull(id uint64) (storedKey, val uint64, ok bool) {
	idx := int(id % uint64(a.layout.BlockLen))
	base := a.wordBase(id)
	nd := a.layout.Normal[idx]

	if a.testBit(base, nd.Key.LargeBit) {
		return 0, 0, false
	}
	if !a.testBit(base, nd.Key.StatusBit) {
		return 0, 0, false
	}

	storedKey = a.readField(base, nd.Key.Overall) & a.storedKeyMask
	val = a.readField(base, nd.Val)
	val = a.walkOverflow(id, val)
	return storedKey, val, true
}

// walkOverflow accumulates every large continuation reachable from
// home's chain into val. From each search base it follows the reprobe
// schedule, skipping large slots whose stored code does not match the
// step, and stops at the first slot that is not a large continuation
// (the chain has ended), or once reprobeLimit steps have been searched
// at one level without a match. Each hit advances the
// search base by one reprobeHop, mirroring how add_rec lays down
// successive overflow links.
func (a *Array) walkOverflow(home, val uint64) uint64 {
	overflows := 0
	searchBase := (home + a.reprobeHop) & a.sizeMask
	reprobeStep := 0
	for reprobeStep <= a.reprobeLimit {
		cid := searchBase
		if reprobeStep > 0 {
			off, _ := a.reprobes.At(reprobeStep)
			cid = (searchBase + off) & a.sizeMask
		}
		cidx := int(cid % uint64(a.layout.BlockLen))
		cbase := a.wordBase(cid)
		ld := a.layout.Large[cidx]

		if a.testBit(cbase, ld.Key.LargeBit) {
			dataMask := (uint64(1) << ld.Key.DataWidth) - 1
			code := a.readField(cbase, ld.Key.Overall) & dataMask
			if code == uint64(reprobeStep) {
				lval := a.readField(cbase, ld.Val)
				shift := a.valBits + uint(overflows)*a.lvalBits
				val += lval << shift
				overflows++
				searchBase = (cid + a.reprobeHop) & a.sizeMask
				reprobeStep = 0
				continue
			}
			reprobeStep++
			continue
		}
		break
	}
	return val
}

// GetKeyVal resolves the logical key owning slot id and returns the
// value stored at that exact slot (not the chain sum): for a home slot
// this is simply its value; for a large continuation it is that
// continuation's contribution, left-shifted into the position it
// represents within the full count.
func (a *Array) GetKeyVal(id uint64) (storedKey, val uint64, ok bool) {
	cur := id & a.sizeMask
	overflows := 0
	var homeBase int
	var homeDesc = a.layout.Normal[0]
	var isEmpty bool

	for {
		idx := int(cur % uint64(a.layout.BlockLen))
		base := a.wordBase(cur)
		normal := a.layout.Normal[idx]
		isLarge := a.testBit(base, normal.Key.LargeBit)

		active := normal
		if isLarge {
			active = a.layout.Large[idx]
		}

		if overflows == 0 {
			homeBase = base
			homeDesc = active
			isEmpty = !isLarge && !a.testBit(base, normal.Key.StatusBit)
		}

		if !isLarge {
			dataMask := (uint64(1) << active.Key.DataWidth) - 1
			storedKey = a.readField(base, active.Key.Overall) & dataMask & a.storedKeyMask
			break
		}

		dataMask := (uint64(1) << active.Key.DataWidth) - 1
		code := a.readField(base, active.Key.Overall) & dataMask
		if code != 0 {
			off, okOff := a.reprobes.At(int(code))
			if !okOff {
				return 0, 0, false
			}
			cur = (cur - off) & a.sizeMask
		}
		cur = (cur - a.reprobeHop) & a.sizeMask
		overflows++
	}

	if isEmpty {
		return 0, 0, false
	}

	val = a.readField(homeBase, homeDesc.Val)
	if overflows > 0 {
		val <<= a.valBits
		if overflows-1 > 0 {
			val <<= a.lvalBits * uint(overflows-1)
		}
	}
	return storedKey, val, true
}

// GetVal linear-probes home's reprobe chain for storedKey and returns
// its value, optionally summed across the full overflow chain.
func (a *Array) GetVal(home, storedKey uint64, full bool) (uint64, bool) {
	reprobeStep := 0
	cid := home
	for {
		idx := int(cid % uint64(a.layout.BlockLen))
		base := a.wordBase(cid)
		nd := a.layout.Normal[idx]

		if !a.testBit(base, nd.Key.LargeBit) {
			if a.testBit(base, nd.Key.StatusBit) {
				key := a.readField(base, nd.Key.Overall) & a.storedKeyMask
				if key == storedKey {
					val := a.readField(base, nd.Val)
					if full {
						val = a.walkOverflow(cid, val)
					}
					return val, true
				}
			}
		}

		reprobeStep++
		if reprobeStep > a.reprobeLimit {
			return 0, false
		}
		off, _ := a.reprobes.At(reprobeStep)
		cid = (home + off) & a.sizeMask
	}
}
