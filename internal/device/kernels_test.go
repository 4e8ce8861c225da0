package device

import (
	"testing"
)

func TestKernels(t *testing.T) {
	s := NewStream()
	defer s.Close()

	t.Run("BroadcastRowsAsymmetric", func(t *testing.T) {
		// C=3 classes, N=2 samples: bias varies down the rows and is
		// replicated across the columns.
		z := NewMatrix(3, 2, RowMajor)
		bias := VectorOf([]float32{10, 20, 30}, 3)
		BroadcastRows(s, z, bias)
		s.Synchronize()
		approxEqual(t, z.ToHost(), []float32{10, 10, 20, 20, 30, 30}, 0, "BroadcastRows")
	})

	t.Run("BroadcastRowsOverwrites", func(t *testing.T) {
		z := ViewOf([]float32{1, 2, 3, 4}, 2, 2, RowMajor)
		bias := VectorOf([]float32{5, 6}, 2)
		BroadcastRows(s, z, bias)
		s.Synchronize()
		approxEqual(t, z.ToHost(), []float32{5, 5, 6, 6}, 0, "BroadcastRows overwrite")
	})

	t.Run("MapSum", func(t *testing.T) {
		y := VectorOf([]float32{0, 1, 2}, 3)
		z := VectorOf([]float32{1, 3, 5}, 3)
		out := NewMatrix(1, 1, RowMajor)
		MapSum(s, 0.5, func(a, b float32) float32 { return b - a }, y, z, out)
		var got float32
		CopyScalar(s, &got, out)
		s.Synchronize()
		// 0.5 * ((1-0)+(3-1)+(5-2)) = 3
		if got != 3 {
			t.Errorf("MapSum: got %f, want 3", got)
		}
	})

	t.Run("ZipInPlace", func(t *testing.T) {
		y := VectorOf([]float32{1, 2, 3}, 3)
		z := VectorOf([]float32{10, 20, 30}, 3)
		ZipInPlace(s, func(a, b float32) float32 { return b - a }, y, z)
		s.Synchronize()
		approxEqual(t, z.ToHost(), []float32{9, 18, 27}, 0, "ZipInPlace")
	})

	t.Run("ZipInPlaceColumnVector", func(t *testing.T) {
		// A column view of a wider matrix exercises the strided path.
		m := ViewOf([]float32{1, 100, 2, 200, 3, 300}, 3, 2, RowMajor)
		y := VectorOf([]float32{1, 1, 1}, 3)
		ZipInPlace(s, func(a, b float32) float32 { return a + b }, y, m.Col(0))
		s.Synchronize()
		approxEqual(t, m.ToHost(), []float32{2, 100, 3, 200, 4, 300}, 0, "ZipInPlace strided")
	})

	t.Run("MeanRows", func(t *testing.T) {
		src := ViewOf([]float32{1, 3, 10, 30, 100, 300}, 3, 2, RowMajor)
		dst := NewMatrix(3, 1, RowMajor)
		MeanRows(s, dst, src)
		s.Synchronize()
		approxEqual(t, dst.ToHost(), []float32{2, 20, 200}, 1e-5, "MeanRows")
	})

	t.Run("StreamOrdering", func(t *testing.T) {
		// Kernels observe the completed output of their predecessors.
		z := NewMatrix(2, 3, RowMajor)
		bias := VectorOf([]float32{1, 2}, 2)
		BroadcastRows(s, z, bias)
		sums := NewMatrix(2, 1, RowMajor)
		MeanRows(s, sums, z)
		s.Synchronize()
		approxEqual(t, sums.ToHost(), []float32{1, 2}, 1e-6, "stream ordering")
	})
}
