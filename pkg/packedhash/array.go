// Package packedhash implements the concurrent, bit-packed, lock-free
// hash counter at the center of this module: an open-addressed table
// whose key and value fields are packed at sub-word bit boundaries,
// supporting N-way concurrent insertion/increment via CAS and overflow
// of oversized counts into chained "large" continuation slots.
//
// The claim-then-increment-then-overflow recursion, the reprobe-code
// back-reference convention, and the status-bit/zero-key sentinel
// distinction are all grounded directly on the Jellyfish reversible hash
// array this module's specification was distilled from; the bit-packing
// geometry itself is precomputed once by pkg/offsets rather than derived
// per access.
package packedhash

import (
	"fmt"
	"io"
	"math/bits"
	"sync/atomic"

	"github.com/jellyhash/kmerhash/pkg/memblock"
	"github.com/jellyhash/kmerhash/pkg/offsets"
	"github.com/jellyhash/kmerhash/pkg/reprobe"
	"github.com/jellyhash/kmerhash/pkg/revhash"
	"github.com/jellyhash/kmerhash/pkg/sketch"
)

const wordBits = 64

// Options configures a new Array.
type Options struct {
	// Size is the number of slots; must be a power of two.
	Size uint64
	// KeyBits is the width of logical keys in bits (<=64). For DNA
	// k-mers this is 2*mer_len.
	KeyBits uint
	// ValBits is the width of a home slot's value field in bits.
	ValBits uint
	// ReprobeLimit bounds collision reprobing for every claim, both of a
	// home slot and of each overflow continuation. The overflow chain
	// depth has its own bound, derived from the continuation value width.
	ReprobeLimit int
	// MatrixSource optionally supplies entropy for the reversible hash
	// matrix, for reproducible tests. Defaults to crypto/rand.
	MatrixSource io.Reader
	// Sketch optionally wires a Bloom pre-filter into which Add records
	// every key, and which Seen queries. Add itself does not consult the
	// filter: every Add takes the normal claim/reprobe path, so the
	// filter never affects correctness.
	Sketch *sketch.Filter
}

// Array is a concurrent, lock-free packed hash table.
type Array struct {
	size          uint64
	sizeMask      uint64
	logSize       uint
	keyBits       uint
	storedKeyBits uint
	storedKeyMask uint64
	valBits       uint
	lvalBits      uint
	reprobeLimit  int
	maxOverflow   int

	reprobes   *reprobe.Schedule
	reprobeHop uint64

	layout *offsets.Layout
	block  *memblock.Block
	matrix *revhash.Matrix
	sketch *sketch.Filter

	zeroCount uint64 // reserved, see DESIGN.md

	closed  int32
	release func() error // non-nil only for arrays opened via OpenRawFile
}

// New constructs an Array per opts.
func New(opts Options) (*Array, error) {
	if opts.Size == 0 || opts.Size&(opts.Size-1) != 0 {
		return nil, fmt.Errorf("%w: size must be a power of two, got %d", ErrInvalidInput, opts.Size)
	}
	if opts.KeyBits == 0 || opts.KeyBits > 64 {
		return nil, fmt.Errorf("%w: KeyBits must be in [1,64], got %d", ErrInvalidInput, opts.KeyBits)
	}
	if opts.ValBits == 0 {
		return nil, fmt.Errorf("%w: ValBits must be > 0", ErrInvalidInput)
	}
	if opts.ReprobeLimit < 0 {
		return nil, fmt.Errorf("%w: ReprobeLimit must be >= 0", ErrInvalidInput)
	}

	logSize := uint(bits.Len64(opts.Size - 1))
	if opts.KeyBits < logSize {
		return nil, fmt.Errorf("%w: KeyBits (%d) smaller than log2(size) (%d)", ErrInvalidInput, opts.KeyBits, logSize)
	}
	storedKeyBits := opts.KeyBits - logSize

	reprobes, err := reprobe.New(opts.ReprobeLimit)
	if err != nil {
		return nil, err
	}

	return newArray(opts.Size, logSize, storedKeyBits, opts.KeyBits, opts.ValBits, reprobes, opts.MatrixSource, nil, opts.Sketch)
}

func newArray(size uint64, logSize, storedKeyBits, keyBits, valBits uint, reprobes *reprobe.Schedule, matrixSrc io.Reader, prebuilt *revhash.Matrix, sk *sketch.Filter) (*Array, error) {
	reprobeBits := uint(bits.Len(uint(reprobes.Limit + 1)))

	layout, err := offsets.New(storedKeyBits, reprobeBits, valBits)
	if err != nil {
		return nil, err
	}

	blockCount := (size + uint64(layout.BlockLen) - 1) / uint64(layout.BlockLen)
	wordCount := blockCount * uint64(layout.BlockWords)
	block, err := memblock.New(int(wordCount))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	matrix := prebuilt
	if matrix == nil {
		if matrixSrc != nil {
			matrix, err = revhash.NewFromReader(int(keyBits), matrixSrc)
		} else {
			matrix, err = revhash.New(int(keyBits))
		}
		if err != nil {
			return nil, fmt.Errorf("packedhash: building hash matrix: %w", err)
		}
	}

	hop, _ := reprobes.At(0)
	maxOverflow := int(64/layout.LargeValBits) + 4

	var storedKeyMask uint64
	if storedKeyBits > 0 {
		storedKeyMask = (uint64(1) << storedKeyBits) - 1
	}

	return &Array{
		size:          size,
		sizeMask:      size - 1,
		logSize:       logSize,
		keyBits:       keyBits,
		storedKeyBits: storedKeyBits,
		storedKeyMask: storedKeyMask,
		valBits:       valBits,
		lvalBits:      layout.LargeValBits,
		reprobeLimit:  reprobes.Limit,
		maxOverflow:   maxOverflow,
		reprobes:      reprobes,
		reprobeHop:    hop,
		layout:        layout,
		block:         block,
		matrix:        matrix,
		sketch:        sk,
	}, nil
}

// Size returns the slot count.
func (a *Array) Size() uint64 { return a.size }

// KeyBits returns the configured logical key width.
func (a *Array) KeyBits() uint { return a.keyBits }

// ValBits returns the home slot value field width.
func (a *Array) ValBits() uint { return a.valBits }

// Close releases any resources backing the array that require explicit
// release -- the mmap'd region and advisory file lock held by an array
// returned from OpenRawFile. For an array built by New or OpenRaw it
// only marks the array closed. Once closed, Add returns ErrClosed.
// Close is idempotent.
func (a *Array) Close() error {
	if !atomic.CompareAndSwapInt32(&a.closed, 0, 1) {
		return nil
	}
	if a.release == nil {
		return nil
	}
	return a.release()
}

// Add increments key's count by val, claiming a home slot on first
// touch and spilling overflow into chained large continuations as
// needed. Returns ErrTableFull if the reprobe limit is exceeded at any
// level of the chain; in that case already-applied increments at every
// exhausted level are backed out so a failed Add never inflates a
// stored count.
func (a *Array) Add(key, val uint64) error {
	if atomic.LoadInt32(&a.closed) != 0 {
		return ErrClosed
	}
	if key == 0 {
		return fmt.Errorf("%w: key must be nonzero", ErrInvalidInput)
	}
	if a.keyBits < 64 && key>>a.keyBits != 0 {
		return fmt.Errorf("%w: key exceeds configured key width of %d bits", ErrInvalidInput, a.keyBits)
	}
	if a.sketch != nil {
		a.sketch.Add(key)
	}
	h := a.matrix.Hash(key)
	home := h & a.sizeMask
	stored := (h >> a.logSize) & a.storedKeyMask
	return a.addRec(home, stored, val, false, 0)
}

// Seen reports whether the Bloom pre-filter (if configured) has
// possibly observed key before. Always returns true when no filter is
// configured (treat "unknown" as "maybe seen" so callers default to the
// safe, full-lookup path).
func (a *Array) Seen(key uint64) bool {
	if a.sketch == nil {
		return true
	}
	return a.sketch.MaybeSeen(key)
}

func (a *Array) addRec(id, keyData, val uint64, large bool, depth int) error {
	if depth > a.maxOverflow {
		return ErrTableFull
	}
	slot, err := a.claim(id, keyData, large)
	if err != nil {
		return err
	}
	carry := a.increment(slot, val)
	if carry == 0 {
		return nil
	}
	next := (slot.id + a.reprobeHop) & a.sizeMask
	if err := a.addRec(next, keyData, carry, true, depth+1); err != nil {
		a.decrement(slot, val)
		return err
	}
	return nil
}

func (a *Array) wordBase(id uint64) int {
	block := id / uint64(a.layout.BlockLen)
	return int(block) * a.layout.BlockWords
}

func (a *Array) readField(base int, w offsets.Window) uint64 {
	w0 := atomic.LoadUint64(a.block.Word(base + w.Word1))
	var w1 uint64
	if w.Word2 >= 0 {
		w1 = atomic.LoadUint64(a.block.Word(base + w.Word2))
	}
	return w.Unpack(w0, w1)
}

func (a *Array) testBit(base int, w offsets.Window) bool {
	return a.readField(base, w) != 0
}
