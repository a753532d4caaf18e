// Package revhash implements an invertible linear hash over GF(2).
//
// A Matrix is a square binary matrix applied to a key by XOR-accumulating
// the rows selected by the key's set bits. Because the matrix is built to
// be invertible, the original key can always be recovered from a hashed
// value via the precomputed inverse, which is how the packed array
// reconstructs keys during iteration without storing them in full.
package revhash

import (
	"crypto/rand"
	"errors"
	"io"
	"math/bits"
)

// ErrInvalidSize is returned when a matrix is requested for a bit width
// outside the supported range.
var ErrInvalidSize = errors.New("revhash: bits must be in [1, 64]")

// ErrSingular is returned when no invertible matrix could be constructed
// from the supplied entropy after a bounded number of attempts.
var ErrSingular = errors.New("revhash: failed to construct an invertible matrix")

const maxAttempts = 64

// Matrix is a bits x bits invertible matrix over GF(2), stored together
// with its inverse.
type Matrix struct {
	bits int
	rows []uint64 // rows[i] selects, per output bit i, which input bits contribute
	inv  []uint64 // inverse matrix, same row convention
}

// New builds a random invertible matrix of the given bit width using
// crypto/rand as the entropy source.
func New(bitWidth int) (*Matrix, error) {
	return NewFromReader(bitWidth, rand.Reader)
}

// NewFromReader builds a random invertible matrix reading row entropy from r.
// Exposed so tests can supply a deterministic, seeded reader.
func NewFromReader(bitWidth int, r io.Reader) (*Matrix, error) {
	if bitWidth <= 0 || bitWidth > 64 {
		return nil, ErrInvalidSize
	}
	buf := make([]byte, 8)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rows := make([]uint64, bitWidth)
		for i := range rows {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			v := leUint64(buf)
			if bitWidth < 64 {
				v &= (uint64(1) << uint(bitWidth)) - 1
			}
			rows[i] = v
		}
		m := append([]uint64(nil), rows...)
		id := make([]uint64, bitWidth)
		for i := range id {
			id[i] = uint64(1) << uint(i)
		}
		if invertInPlace(m, id, bitWidth) {
			return &Matrix{bits: bitWidth, rows: rows, inv: id}, nil
		}
	}
	return nil, ErrSingular
}

// Bits reports the matrix's dimension.
func (m *Matrix) Bits() int { return m.bits }

// Hash computes M*x.
func (m *Matrix) Hash(x uint64) uint64 { return apply(m.rows, x) }

// Unhash computes M^-1*x, recovering the original input to Hash.
func (m *Matrix) Unhash(x uint64) uint64 { return apply(m.inv, x) }

func apply(rows []uint64, x uint64) uint64 {
	var out uint64
	for i, row := range rows {
		if bits.OnesCount64(row&x)&1 == 1 {
			out |= uint64(1) << uint(i)
		}
	}
	return out
}

// invertInPlace row-reduces m to the identity matrix while applying the
// same elementary row operations to id. On success id holds m's inverse.
// Returns false if m is singular.
func invertInPlace(m, id []uint64, n int) bool {
	for col := 0; col < n; col++ {
		pivot := -1
		for row := col; row < n; row++ {
			if m[row]&(uint64(1)<<uint(col)) != 0 {
				pivot = row
				break
			}
		}
		if pivot < 0 {
			return false
		}
		m[col], m[pivot] = m[pivot], m[col]
		id[col], id[pivot] = id[pivot], id[col]
		for row := 0; row < n; row++ {
			if row != col && m[row]&(uint64(1)<<uint(col)) != 0 {
				m[row] ^= m[col]
				id[row] ^= id[col]
			}
		}
	}
	return true
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << uint(8*i)
	}
	return v
}
