package memblock

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapped is a Block backed by an mmap'd file region, used to open an
// existing raw dump file in place rather than reading it fully into a
// heap-allocated slice.
type Mapped struct {
	*Block
	region []byte
}

// MapFile mmaps f from its start through byteOffset+wordCount*8
// read-only and wraps the wordCount words beginning at byteOffset as a
// Block. The whole file is mapped (rather than passing byteOffset to
// mmap(2) directly) because mmap's own offset argument must be
// page-aligned, while byteOffset is merely word-aligned (the
// header/reprobe-schedule region that precedes the word array in a raw
// dump). The mapping is read-only: the Array this backs is meant for
// inspecting an already-published dump in place, not for continuing to
// write into it, so attempting an Add against a Mapped-backed Array
// will fault rather than silently corrupt a file other readers may
// have open concurrently. The caller owns f and must call Close on the
// returned Mapped when done; closing does not close f.
//
// Word values are read back via a native-endian uint64 load over the
// mapped bytes, so this assumes a little-endian host to match the
// little-endian encoding WriteRaw uses -- true for the x86-64/arm64
// targets this project runs on.
func MapFile(f *os.File, byteOffset int64, wordCount int) (*Mapped, error) {
	if wordCount <= 0 {
		return nil, fmt.Errorf("memblock: wordCount must be > 0, got %d", wordCount)
	}
	if byteOffset < 0 || byteOffset%8 != 0 {
		return nil, fmt.Errorf("memblock: byteOffset must be a non-negative multiple of 8, got %d", byteOffset)
	}
	mapSize := int(byteOffset) + wordCount*8
	region, err := unix.Mmap(int(f.Fd()), 0, mapSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("memblock: mmap: %w", err)
	}
	words := unsafe.Slice((*uint64)(unsafe.Pointer(&region[byteOffset])), wordCount)
	return &Mapped{Block: FromWords(words), region: region}, nil
}

// Close unmaps the region. The Mapped must not be used afterward.
func (m *Mapped) Close() error {
	if m.region == nil {
		return nil
	}
	err := unix.Munmap(m.region)
	m.region = nil
	return err
}
