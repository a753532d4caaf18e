package packedhash

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"os"
	"sync/atomic"

	"github.com/jellyhash/kmerhash/internal/fs"
	"github.com/jellyhash/kmerhash/pkg/memblock"
	"github.com/jellyhash/kmerhash/pkg/reprobe"
	"github.com/jellyhash/kmerhash/pkg/revhash"
)

const rawHeaderSize = 32

// WriteRaw serializes the array verbatim: a 32-byte header (size,
// stored-key bits, value bits, reprobe limit), the reprobe schedule,
// padding to 16-byte alignment, the reserved zero-count word, and
// finally the raw backing word array. The reversible hash matrix is
// deliberately not part of this format -- like the source it is
// distilled from, the raw dump assumes whoever reopens the file
// supplies the same matrix (see OpenRawOptions).
func (a *Array) WriteRaw(w io.Writer) error {
	var hdr [rawHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], a.size)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(a.storedKeyBits))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(a.valBits))
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(a.reprobeLimit))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}

	reprobeBytes := make([]byte, 8*(a.reprobeLimit+1))
	for i, off := range a.reprobes.Offsets {
		binary.LittleEndian.PutUint64(reprobeBytes[8*i:], off)
	}
	if _, err := w.Write(reprobeBytes); err != nil {
		return fmt.Errorf("%w: writing reprobe schedule: %v", ErrIO, err)
	}

	written := rawHeaderSize + len(reprobeBytes)
	if pad := (16 - written%16) % 16; pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("%w: writing alignment padding: %v", ErrIO, err)
		}
	}

	var zc [8]byte
	binary.LittleEndian.PutUint64(zc[:], atomic.LoadUint64(&a.zeroCount))
	if _, err := w.Write(zc[:]); err != nil {
		return fmt.Errorf("%w: writing zero-count: %v", ErrIO, err)
	}

	words := a.block.Raw()
	buf := make([]byte, 8*len(words))
	for i := range words {
		binary.LittleEndian.PutUint64(buf[8*i:], atomic.LoadUint64(&words[i]))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: writing word array: %v", ErrIO, err)
	}
	return nil
}

// WriteRawFile creates (or truncates) path, holds an exclusive
// advisory lock on it for the duration of the write via internal/fs,
// and serializes a into it with WriteRaw, so a concurrent
// OpenRawFile reader can never observe a partially written dump.
func (a *Array) WriteRawFile(path string) error {
	lock, err := fs.LockFile(path, fs.ExclusiveLock, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer func() { _ = lock.Close() }()
	// Truncate only once the lock is held, so a reader holding the shared
	// lock never sees the file cut short.
	if err := lock.File().Truncate(0); err != nil {
		return fmt.Errorf("%w: truncating %s: %v", ErrIO, path, err)
	}
	return a.WriteRaw(lock.File())
}

// OpenRawOptions supplies the context a raw dump's 32-byte header
// cannot carry by itself: the full logical key width and the
// reversible hash matrix used to produce the dump (or an equivalent
// one, if only hashed-form keys are required).
type OpenRawOptions struct {
	KeyBits uint
	Matrix  *revhash.Matrix
}

// rawHeader is the parsed form of everything a raw dump stores before
// its word array: the 32-byte fixed header, the reprobe schedule, the
// alignment padding, and the reserved zero-count word. bytesRead is
// the total byte length of all of that, i.e. the offset at which the
// word array itself begins.
type rawHeader struct {
	size          uint64
	storedKeyBits uint
	valBits       uint
	reprobeLimit  int
	reprobes      *reprobe.Schedule
	zeroCount     uint64
	bytesRead     int64
}

func readRawHeader(r io.Reader) (rawHeader, error) {
	var hdr [rawHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return rawHeader{}, fmt.Errorf("%w: short header: %v", ErrInvalidMap, err)
	}
	size := binary.LittleEndian.Uint64(hdr[0:8])
	storedKeyBits := uint(binary.LittleEndian.Uint64(hdr[8:16]))
	valBits := uint(binary.LittleEndian.Uint64(hdr[16:24]))
	reprobeLimit := int(binary.LittleEndian.Uint64(hdr[24:32]))

	if size == 0 || size&(size-1) != 0 {
		return rawHeader{}, fmt.Errorf("%w: size %d is not a power of two", ErrInvalidMap, size)
	}
	if reprobeLimit < 0 {
		return rawHeader{}, fmt.Errorf("%w: negative reprobe limit", ErrInvalidMap)
	}

	reprobeBytes := make([]byte, 8*(reprobeLimit+1))
	if _, err := io.ReadFull(r, reprobeBytes); err != nil {
		return rawHeader{}, fmt.Errorf("%w: short reprobe schedule: %v", ErrInvalidMap, err)
	}
	offsetsList := make([]uint64, reprobeLimit+1)
	for i := range offsetsList {
		offsetsList[i] = binary.LittleEndian.Uint64(reprobeBytes[8*i:])
	}
	reprobes := reprobe.FromOffsets(offsetsList)

	read := rawHeaderSize + len(reprobeBytes)
	if pad := (16 - read%16) % 16; pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return rawHeader{}, fmt.Errorf("%w: short padding: %v", ErrInvalidMap, err)
		}
		read += pad
	}

	var zc [8]byte
	if _, err := io.ReadFull(r, zc[:]); err != nil {
		return rawHeader{}, fmt.Errorf("%w: short zero-count: %v", ErrInvalidMap, err)
	}
	read += len(zc)

	return rawHeader{
		size:          size,
		storedKeyBits: storedKeyBits,
		valBits:       valBits,
		reprobeLimit:  reprobeLimit,
		reprobes:      reprobes,
		zeroCount:     binary.LittleEndian.Uint64(zc[:]),
		bytesRead:     int64(read),
	}, nil
}

// resolveKeyBits validates opts against h and returns the logical key
// width to construct the array with: opts.KeyBits if given (must not
// be narrower than the header implies), otherwise the header's minimum.
// If opts.Matrix is also given, its width must match exactly.
func (h rawHeader) resolveKeyBits(opts OpenRawOptions) (uint, error) {
	logSize := uint(bits.Len64(h.size - 1))
	minKeyBits := h.storedKeyBits + logSize

	keyBits := opts.KeyBits
	if keyBits == 0 {
		keyBits = minKeyBits
	} else if keyBits < minKeyBits {
		return 0, fmt.Errorf("%w: OpenRawOptions.KeyBits=%d is narrower than the header's stored-key-bits+log2(size)=%d",
			ErrIncompatible, keyBits, minKeyBits)
	}
	if opts.Matrix != nil && uint(opts.Matrix.Bits()) != keyBits {
		return 0, fmt.Errorf("%w: OpenRawOptions.Matrix was built for %d key bits, resolved key width is %d",
			ErrIncompatible, opts.Matrix.Bits(), keyBits)
	}
	return keyBits, nil
}

// OpenRaw reconstructs an Array from a byte stream previously produced
// by WriteRaw. The reader must be positioned at the start of the dump;
// fewer than 32 bytes available yields ErrInvalidMap. A KeyBits or
// Matrix in opts that conflicts with the stored header yields
// ErrIncompatible.
func OpenRaw(r io.Reader, opts OpenRawOptions) (*Array, error) {
	h, err := readRawHeader(r)
	if err != nil {
		return nil, err
	}
	keyBits, err := h.resolveKeyBits(opts)
	if err != nil {
		return nil, err
	}

	logSize := uint(bits.Len64(h.size - 1))
	a, err := newArray(h.size, logSize, h.storedKeyBits, keyBits, h.valBits, h.reprobes, nil, opts.Matrix, nil)
	if err != nil {
		return nil, err
	}
	a.zeroCount = h.zeroCount

	wordCount := a.block.Len()
	buf := make([]byte, 8*wordCount)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: short word array: %v", ErrInvalidMap, err)
	}
	words := make([]uint64, wordCount)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
	a.block = memblock.FromWords(words)

	return a, nil
}

// OpenRawFile opens path, acquires a shared advisory lock on it via
// internal/fs (so a concurrent exclusive-lock writer republishing the
// file blocks until every reader releases its lock), and maps its word
// array in place with memblock.MapFile instead of heap-copying it,
// analogous to the teacher's own advisory-lock pattern in pkg/slotcache
// guarding concurrent access to its backing file. The returned Array
// must be released with Close, which unmaps the region and releases
// the lock; Add returns ErrClosed afterward.
func OpenRawFile(path string, opts OpenRawOptions) (*Array, error) {
	lock, err := fs.LockFile(path, fs.SharedLock, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	h, err := readRawHeader(lock.File())
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	keyBits, err := h.resolveKeyBits(opts)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}

	logSize := uint(bits.Len64(h.size - 1))
	a, err := newArray(h.size, logSize, h.storedKeyBits, keyBits, h.valBits, h.reprobes, nil, opts.Matrix, nil)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	a.zeroCount = h.zeroCount

	mapped, err := memblock.MapFile(lock.File(), h.bytesRead, a.block.Len())
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("%w: mapping word array: %v", ErrInvalidMap, err)
	}
	a.block = mapped.Block
	a.release = func() error {
		mapErr := mapped.Close()
		lockErr := lock.Close()
		if mapErr != nil {
			return mapErr
		}
		return lockErr
	}

	return a, nil
}
