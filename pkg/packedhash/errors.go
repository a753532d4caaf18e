package packedhash

import "errors"

// ErrTableFull is returned when the reprobe limit is exceeded during a
// claim or an overflow recursion; the caller must flush the table or
// retry against a differently sized one.
var ErrTableFull = errors.New("packedhash: table full")

// ErrInvalidMap is returned when a serialized raw dump is too short or
// internally inconsistent to be mapped as an Array.
var ErrInvalidMap = errors.New("packedhash: mapped region is invalid")

// ErrIO is returned when a write or seek against an output stream fails
// during serialization.
var ErrIO = errors.New("packedhash: i/o error")

// ErrAllocation is returned when the backing memory block could not be
// allocated.
var ErrAllocation = errors.New("packedhash: allocation failed")

// ErrInvalidInput is returned for construction options or call arguments
// that violate the array's invariants (non-power-of-two size, a zero
// key, an oversized key, etc.)
var ErrInvalidInput = errors.New("packedhash: invalid input")

// ErrIncompatible is returned by OpenRaw/OpenRawFile when the caller's
// OpenRawOptions conflict with the header actually stored in the dump
// (a KeyBits narrower than the header implies, or a Matrix built for a
// different key width).
var ErrIncompatible = errors.New("packedhash: incompatible with stored header")

// ErrClosed is returned by Add once Close has been called on the Array.
// For an array opened via OpenRawFile, Close has also unmapped its
// backing memory, which must not be touched afterward.
var ErrClosed = errors.New("packedhash: closed")
