// Package bitmap provides fixed-size bitmaps in two representations: Dense,
// which stores bits in 64-bit chunks, and Sparse, which stores runs of ones
// and suits bitmaps where set bits are rare or clustered.
//
// Both representations read and write binary strings where the last
// character is position 0, so "00101" has bits 0 and 2 set.
package bitmap

import (
	"errors"
	"fmt"
)

// ChunkBits is the number of bits held by one Dense chunk.
const ChunkBits = 64

var (
	// ErrOutOfRange is returned when a position is outside [0, size).
	ErrOutOfRange = errors.New("bitmap: position out of range")

	// ErrInvalidChar is returned when parsing a string that contains
	// something other than '0' or '1'.
	ErrInvalidChar = errors.New("bitmap: invalid character")
)

// Bitmap is implemented by Dense and Sparse.
type Bitmap interface {
	Size() int
	Get(position int) bool
	Set(position int, value bool) error
	Count() int
	String() string
}

var (
	_ Bitmap = (*Dense)(nil)
	_ Bitmap = (*Sparse)(nil)
)

// chunksCount returns how many chunks of chunkBits bits hold size bits.
func chunksCount(size, chunkBits int) int {
	return (size + chunkBits - 1) / chunkBits
}

// bitIndex maps a position to its chunk and the bit inside that chunk.
func bitIndex(position, chunkBits int) (chunk int, bit int) {
	return position / chunkBits, position % chunkBits
}

func checkPosition(position, size int) error {
	if position < 0 || position >= size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, position, size)
	}
	return nil
}

// scan walks s from its last character to its first, calling fn with the
// position each character encodes.
func scan(s string, fn func(position int, one bool)) error {
	n := len(s)
	for i := n - 1; i >= 0; i-- {
		switch s[i] {
		case '1':
			fn(n-1-i, true)
		case '0':
			fn(n-1-i, false)
		default:
			return fmt.Errorf("%w %q at offset %d", ErrInvalidChar, s[i], i)
		}
	}
	return nil
}

// Parse returns a Dense bitmap when sparse is false and a Sparse one
// otherwise.
func Parse(s string, sparse bool) (Bitmap, error) {
	if sparse {
		return ParseSparse(s)
	}
	return ParseDense(s)
}
