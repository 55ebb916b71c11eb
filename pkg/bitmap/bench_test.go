package bitmap

import (
	"strings"
	"testing"
)

const (
	densePattern        = "1101011001110101100111010110011101011001110101100111010110011101011001110101100111010110011101011001"
	denseAnotherPattern = "10110111011011011101101101110110110111011011011101101101110110110111011011011101101101110110110111011011011101"

	sparsePattern        = "0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000011"
	sparseAnotherPattern = "00000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000110"

	times = 1000
)

var benchSink any

func repeatDense(pattern string) *Dense {
	return MustParseDense(strings.Repeat(pattern, times))
}

func repeatSparse(pattern string) *Sparse {
	return MustParseSparse(strings.Repeat(pattern, times))
}

func benchmarkGet(b *testing.B, bm Bitmap) {
	for i := 0; i < b.N; i++ {
		for p := 0; p < bm.Size(); p++ {
			benchSink = bm.Get(p)
		}
	}
}

func benchmarkSet(b *testing.B, bm Bitmap) {
	for i := 0; i < b.N; i++ {
		for p := 0; p < bm.Size(); p++ {
			_ = bm.Set(p, true)
		}
	}
}

func BenchmarkDense(b *testing.B) {
	for _, tc := range []struct {
		name           string
		first, another string
	}{
		{"dense", densePattern, denseAnotherPattern},
		{"sparse", sparsePattern, sparseAnotherPattern},
	} {
		first, second := repeatDense(tc.first), repeatDense(tc.another)

		b.Run(tc.name+"/get", func(b *testing.B) { benchmarkGet(b, first) })
		b.Run(tc.name+"/set", func(b *testing.B) { benchmarkSet(b, first.Clone()) })
		b.Run(tc.name+"/and", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSink = first.And(second)
			}
		})
		b.Run(tc.name+"/or", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSink = first.Or(second)
			}
		})
		b.Run(tc.name+"/xor", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSink = first.Xor(second)
			}
		})
		b.Run(tc.name+"/not", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSink = first.Not()
			}
		})
	}
}

func BenchmarkSparse(b *testing.B) {
	for _, tc := range []struct {
		name           string
		first, another string
	}{
		{"dense", densePattern, denseAnotherPattern},
		{"sparse", sparsePattern, sparseAnotherPattern},
	} {
		first, second := repeatSparse(tc.first), repeatSparse(tc.another)

		b.Run(tc.name+"/get", func(b *testing.B) { benchmarkGet(b, first) })
		b.Run(tc.name+"/set", func(b *testing.B) { benchmarkSet(b, first.Clone()) })
		b.Run(tc.name+"/and", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSink = first.And(second)
			}
		})
		b.Run(tc.name+"/or", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSink = first.Or(second)
			}
		})
		b.Run(tc.name+"/xor", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSink = first.Xor(second)
			}
		})
		b.Run(tc.name+"/not", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSink = first.Not()
			}
		})
	}
}
