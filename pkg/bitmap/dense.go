package bitmap

import (
	"math/bits"
	"strings"
)

// Dense stores a bitmap in chunks of 64 bits.
type Dense struct {
	chunks []uint64
	size   int
}

// NewDense creates a zeroed Dense bitmap with a fixed size.
func NewDense(size int) *Dense {
	if size < 0 {
		size = 0
	}
	return &Dense{
		chunks: make([]uint64, chunksCount(size, ChunkBits)),
		size:   size,
	}
}

// ParseDense builds a Dense bitmap from a binary string.
func ParseDense(s string) (*Dense, error) {
	d := NewDense(len(s))
	err := scan(s, func(position int, one bool) {
		if one {
			d.setOne(bitIndex(position, ChunkBits))
		}
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// MustParseDense is like ParseDense but panics on malformed input.
func MustParseDense(s string) *Dense {
	d, err := ParseDense(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Dense) Size() int {
	return d.size
}

// Get returns the bit at position. Positions outside the bitmap read as 0.
func (d *Dense) Get(position int) bool {
	if position < 0 || position >= d.size {
		return false
	}
	chunk, bit := bitIndex(position, ChunkBits)
	return d.chunks[chunk]&(1<<bit) != 0
}

// Set stores value at position.
func (d *Dense) Set(position int, value bool) error {
	if err := checkPosition(position, d.size); err != nil {
		return err
	}
	chunk, bit := bitIndex(position, ChunkBits)
	if value {
		d.setOne(chunk, bit)
	} else {
		d.setZero(chunk, bit)
	}
	return nil
}

func (d *Dense) setOne(chunk, bit int) {
	d.chunks[chunk] |= 1 << bit
}

func (d *Dense) setZero(chunk, bit int) {
	d.chunks[chunk] &^= 1 << bit
}

// Count returns the number of set bits.
func (d *Dense) Count() int {
	n := 0
	for _, c := range d.chunks {
		n += bits.OnesCount64(c)
	}
	return n
}

// String renders the bitmap with position 0 as the last character.
func (d *Dense) String() string {
	var b strings.Builder
	b.Grow(d.size)
	for p := d.size - 1; p >= 0; p-- {
		if d.Get(p) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Equal reports whether both bitmaps have the same size and bits.
func (d *Dense) Equal(other *Dense) bool {
	if d.size != other.size {
		return false
	}
	for i := range d.chunks {
		if d.chunks[i] != other.chunks[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (d *Dense) Clone() *Dense {
	chunks := make([]uint64, len(d.chunks))
	copy(chunks, d.chunks)
	return &Dense{chunks: chunks, size: d.size}
}

// And returns d AND other, sized to the smaller operand.
func (d *Dense) And(other *Dense) *Dense {
	return d.combine(other, func(a, b uint64) uint64 { return a & b })
}

// Or returns d OR other, sized to the smaller operand.
func (d *Dense) Or(other *Dense) *Dense {
	return d.combine(other, func(a, b uint64) uint64 { return a | b })
}

// Xor returns d XOR other, sized to the smaller operand.
func (d *Dense) Xor(other *Dense) *Dense {
	return d.combine(other, func(a, b uint64) uint64 { return a ^ b })
}

// Not returns the complement of d. Bits past Size stay zero.
func (d *Dense) Not() *Dense {
	result := &Dense{
		chunks: make([]uint64, len(d.chunks)),
		size:   d.size,
	}
	for i, c := range d.chunks {
		result.chunks[i] = ^c
	}
	result.clearTail()
	return result
}

func (d *Dense) combine(other *Dense, op func(a, b uint64) uint64) *Dense {
	result := NewDense(min(d.size, other.size))
	for i := range result.chunks {
		result.chunks[i] = op(d.chunks[i], other.chunks[i])
	}
	result.clearTail()
	return result
}

// clearTail zeroes the unused high bits of the last chunk.
func (d *Dense) clearTail() {
	if len(d.chunks) == 0 {
		return
	}
	if used := d.size % ChunkBits; used != 0 {
		d.chunks[len(d.chunks)-1] &= (1 << used) - 1
	}
}

// ToSparse converts d into run-length form.
func (d *Dense) ToSparse() *Sparse {
	s := NewSparse(d.size)
	start := -1
	for p := 0; p < d.size; p++ {
		switch {
		case d.Get(p) && start < 0:
			start = p
		case !d.Get(p) && start >= 0:
			s.runs = append(s.runs, Run{Start: start, Length: p - start})
			start = -1
		}
	}
	if start >= 0 {
		s.runs = append(s.runs, Run{Start: start, Length: d.size - start})
	}
	return s
}

func (d *Dense) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Dense) UnmarshalText(text []byte) error {
	parsed, err := ParseDense(string(text))
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
