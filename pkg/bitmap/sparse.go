package bitmap

import (
	"slices"
	"sort"
	"strings"
)

// Run is a range of consecutive ones: positions [Start, Start+Length).
type Run struct {
	Start  int
	Length int
}

// End returns the first position after the run.
func (r Run) End() int {
	return r.Start + r.Length
}

// Sparse stores only the runs of ones. Runs are sorted by Start and never
// overlap or touch, so every run is maximal.
type Sparse struct {
	runs []Run
	size int
}

// NewSparse creates an empty Sparse bitmap with a fixed size.
func NewSparse(size int) *Sparse {
	if size < 0 {
		size = 0
	}
	return &Sparse{size: size}
}

// ParseSparse builds a Sparse bitmap from a binary string.
func ParseSparse(s string) (*Sparse, error) {
	sp := NewSparse(len(s))
	err := scan(s, func(position int, one bool) {
		if !one {
			return
		}
		// scan walks upwards, so a one either extends the last run or
		// opens a new one.
		if n := len(sp.runs); n > 0 && sp.runs[n-1].End() == position {
			sp.runs[n-1].Length++
			return
		}
		sp.runs = append(sp.runs, Run{Start: position, Length: 1})
	})
	if err != nil {
		return nil, err
	}
	return sp, nil
}

// MustParseSparse is like ParseSparse but panics on malformed input.
func MustParseSparse(s string) *Sparse {
	sp, err := ParseSparse(s)
	if err != nil {
		panic(err)
	}
	return sp
}

func (s *Sparse) Size() int {
	return s.size
}

// Runs returns a copy of the runs of ones, in ascending order.
func (s *Sparse) Runs() []Run {
	return slices.Clone(s.runs)
}

// after returns the index of the first run starting after position.
func (s *Sparse) after(position int) int {
	return sort.Search(len(s.runs), func(i int) bool {
		return s.runs[i].Start > position
	})
}

// Get returns the bit at position. Positions outside the bitmap read as 0.
func (s *Sparse) Get(position int) bool {
	if position < 0 || position >= s.size {
		return false
	}
	i := s.after(position) - 1
	return i >= 0 && position < s.runs[i].End()
}

// Set stores value at position, merging or splitting runs as needed.
func (s *Sparse) Set(position int, value bool) error {
	if err := checkPosition(position, s.size); err != nil {
		return err
	}
	next := s.after(position)
	if value {
		s.setOne(position, next)
	} else {
		s.setZero(position, next)
	}
	return nil
}

func (s *Sparse) setOne(position, next int) {
	prev := next - 1
	if prev >= 0 && position < s.runs[prev].End() {
		return
	}

	joinLeft := prev >= 0 && s.runs[prev].End() == position
	joinRight := next < len(s.runs) && s.runs[next].Start == position+1

	switch {
	case joinLeft && joinRight:
		s.runs[prev].Length += 1 + s.runs[next].Length
		s.runs = slices.Delete(s.runs, next, next+1)
	case joinLeft:
		s.runs[prev].Length++
	case joinRight:
		s.runs[next].Start--
		s.runs[next].Length++
	default:
		s.runs = slices.Insert(s.runs, next, Run{Start: position, Length: 1})
	}
}

func (s *Sparse) setZero(position, next int) {
	prev := next - 1
	if prev < 0 || position >= s.runs[prev].End() {
		return
	}

	run := s.runs[prev]
	switch {
	case run.Length == 1:
		s.runs = slices.Delete(s.runs, prev, prev+1)
	case position == run.Start:
		s.runs[prev].Start++
		s.runs[prev].Length--
	case position == run.End()-1:
		s.runs[prev].Length--
	default:
		// a zero inside a run leaves the leftover as a new run
		s.runs[prev].Length = position - run.Start
		leftover := Run{Start: position + 1, Length: run.End() - position - 1}
		s.runs = slices.Insert(s.runs, next, leftover)
	}
}

// Count returns the number of set bits.
func (s *Sparse) Count() int {
	n := 0
	for _, r := range s.runs {
		n += r.Length
	}
	return n
}

// String renders the bitmap with position 0 as the last character.
func (s *Sparse) String() string {
	out := []byte(strings.Repeat("0", s.size))
	for _, r := range s.runs {
		for p := r.Start; p < r.End(); p++ {
			out[s.size-1-p] = '1'
		}
	}
	return string(out)
}

// Equal reports whether both bitmaps have the same size and bits.
func (s *Sparse) Equal(other *Sparse) bool {
	return s.size == other.size && slices.Equal(s.runs, other.runs)
}

// Clone returns an independent copy.
func (s *Sparse) Clone() *Sparse {
	return &Sparse{runs: slices.Clone(s.runs), size: s.size}
}

// And returns s AND other, sized to the smaller operand.
func (s *Sparse) And(other *Sparse) *Sparse {
	return s.combine(other, func(a, b bool) bool { return a && b })
}

// Or returns s OR other, sized to the smaller operand.
func (s *Sparse) Or(other *Sparse) *Sparse {
	return s.combine(other, func(a, b bool) bool { return a || b })
}

// Xor returns s XOR other, sized to the smaller operand.
func (s *Sparse) Xor(other *Sparse) *Sparse {
	return s.combine(other, func(a, b bool) bool { return a != b })
}

// Not returns the complement of s within [0, Size).
func (s *Sparse) Not() *Sparse {
	result := NewSparse(s.size)
	cursor := 0
	for _, r := range s.runs {
		if r.Start > cursor {
			result.runs = append(result.runs, Run{Start: cursor, Length: r.Start - cursor})
		}
		cursor = r.End()
	}
	if cursor < s.size {
		result.runs = append(result.runs, Run{Start: cursor, Length: s.size - cursor})
	}
	return result
}

// combine sweeps the run boundaries of both operands. Between two adjacent
// boundaries membership in either operand is constant, so op is evaluated
// once per interval.
func (s *Sparse) combine(other *Sparse, op func(a, b bool) bool) *Sparse {
	size := min(s.size, other.size)
	result := NewSparse(size)

	bounds := make([]int, 0, 2*(len(s.runs)+len(other.runs))+2)
	bounds = append(bounds, 0, size)
	for _, runs := range [][]Run{s.runs, other.runs} {
		for _, r := range runs {
			bounds = append(bounds, clamp(r.Start, size), clamp(r.End(), size))
		}
	}
	slices.Sort(bounds)
	bounds = slices.Compact(bounds)

	var i, j int
	for k := 0; k+1 < len(bounds); k++ {
		lo, hi := bounds[k], bounds[k+1]
		for i < len(s.runs) && s.runs[i].End() <= lo {
			i++
		}
		for j < len(other.runs) && other.runs[j].End() <= lo {
			j++
		}
		inA := i < len(s.runs) && s.runs[i].Start <= lo
		inB := j < len(other.runs) && other.runs[j].Start <= lo
		if !op(inA, inB) {
			continue
		}
		if n := len(result.runs); n > 0 && result.runs[n-1].End() == lo {
			result.runs[n-1].Length += hi - lo
		} else {
			result.runs = append(result.runs, Run{Start: lo, Length: hi - lo})
		}
	}
	return result
}

func clamp(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}

// ToDense converts s into chunked form.
func (s *Sparse) ToDense() *Dense {
	d := NewDense(s.size)
	for _, r := range s.runs {
		for p := r.Start; p < r.End(); p++ {
			d.setOne(bitIndex(p, ChunkBits))
		}
	}
	return d
}

func (s *Sparse) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Sparse) UnmarshalText(text []byte) error {
	parsed, err := ParseSparse(string(text))
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
