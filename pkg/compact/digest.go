package compact

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gtank/blake2/blake2b"
)

// DigestSize is the width in bytes of the trailing integrity digest.
const DigestSize = 32

// TrailingDigest computes the BLAKE2b-256 digest of every record byte
// read from r, which must be positioned immediately after the 48-byte
// header and must stop before any existing trailer (the digest never
// covers its own bytes).
func TrailingDigest(r io.Reader) ([DigestSize]byte, error) {
	d, err := blake2b.NewDigest(nil, nil, nil, DigestSize)
	if err != nil {
		return [DigestSize]byte{}, fmt.Errorf("compact: constructing blake2b-256 digest: %w", err)
	}
	if _, err := io.Copy(d, r); err != nil {
		return [DigestSize]byte{}, fmt.Errorf("%w: hashing record stream: %v", ErrIO, err)
	}
	var out [DigestSize]byte
	copy(out[:], d.Sum(nil))
	return out, nil
}

// WriteTrailer appends digest to w, preceded by its fixed 4-byte
// length so a reader that understands the trailer can locate it
// without rescanning the whole file.
func WriteTrailer(w io.Writer, digest [DigestSize]byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], DigestSize)
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: writing trailer length: %v", ErrIO, err)
	}
	if _, err := w.Write(digest[:]); err != nil {
		return fmt.Errorf("%w: writing trailer digest: %v", ErrIO, err)
	}
	return nil
}

// ReadTrailer reads and returns a digest previously written by
// WriteTrailer from r (positioned at the trailer's start).
func ReadTrailer(r io.Reader) ([DigestSize]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return [DigestSize]byte{}, fmt.Errorf("%w: short trailer length: %v", ErrInvalidHeader, err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n != DigestSize {
		return [DigestSize]byte{}, fmt.Errorf("%w: unexpected trailer digest size %d", ErrInvalidHeader, n)
	}
	var out [DigestSize]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return [DigestSize]byte{}, fmt.Errorf("%w: short trailer digest: %v", ErrInvalidHeader, err)
	}
	return out, nil
}
