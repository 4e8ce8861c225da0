package device

import (
	"github.com/rs/zerolog/log"
)

// BroadcastRows overwrites dst so that every element of row i equals v[i].
// The vector varies along the row (class) axis and is replicated along the
// column (sample) axis; dst and v may have different extents (C x N with
// C != N is the common case).
func BroadcastRows(s *Stream, dst *Matrix, v *Matrix) {
	if v.VecLen() != dst.rows {
		log.Panic().Msgf("device: BroadcastRows vector length %d != %d rows", v.VecLen(), dst.rows)
	}
	launch(s, "broadcast_rows", func() {
		for i := 0; i < dst.rows; i++ {
			val := v.VecAt(i)
			for j := 0; j < dst.cols; j++ {
				dst.data[dst.index(i, j)] = val
			}
		}
	})
}

// MapSum fuses an elementwise map over two equal-length vectors with a sum
// reduction: out[0] <- alpha * sum_i f(a[i], b[i]). No intermediate array
// is materialized. out must be a 1x1 device scalar.
func MapSum(s *Stream, alpha float32, f func(a, b float32) float32, a, b, out *Matrix) {
	n := a.VecLen()
	if b.VecLen() != n {
		log.Panic().Msgf("device: MapSum length mismatch: %d vs %d", n, b.VecLen())
	}
	if out.rows != 1 || out.cols != 1 {
		log.Panic().Msgf("device: MapSum output must be 1x1, have %dx%d", out.rows, out.cols)
	}
	launch(s, "map_sum", func() {
		// Accumulate in float64 so the reduction order does not cost
		// precision on large batches.
		var sum float64
		for i := 0; i < n; i++ {
			sum += float64(f(a.VecAt(i), b.VecAt(i)))
		}
		out.data[0] = alpha * float32(sum)
	})
}

// ZipInPlace overwrites b elementwise with f(a[i], b[i]).
func ZipInPlace(s *Stream, f func(a, b float32) float32, a, b *Matrix) {
	n := a.VecLen()
	if b.VecLen() != n {
		log.Panic().Msgf("device: ZipInPlace length mismatch: %d vs %d", n, b.VecLen())
	}
	launch(s, "zip_in_place", func() {
		for i := 0; i < n; i++ {
			b.SetVecAt(i, f(a.VecAt(i), b.VecAt(i)))
		}
	})
}

// MeanRows overwrites dst[i] with the mean of row i of src. dst is a vector
// view of length src.Rows(). The write is unconditional; there is no
// accumulate variant.
func MeanRows(s *Stream, dst *Matrix, src *Matrix) {
	if dst.VecLen() != src.rows {
		log.Panic().Msgf("device: MeanRows destination length %d != %d rows", dst.VecLen(), src.rows)
	}
	launch(s, "mean_rows", func() {
		inv := 1.0 / float64(src.cols)
		for i := 0; i < src.rows; i++ {
			var sum float64
			for j := 0; j < src.cols; j++ {
				sum += float64(src.data[src.index(i, j)])
			}
			dst.SetVecAt(i, float32(sum*inv))
		}
	})
}

// CopyScalar enqueues a device-to-host copy of a 1x1 matrix. The value at
// *dst is valid only after a subsequent Synchronize on the same stream.
func CopyScalar(s *Stream, dst *float32, src *Matrix) {
	if src.rows != 1 || src.cols != 1 {
		log.Panic().Msgf("device: CopyScalar source must be 1x1, have %dx%d", src.rows, src.cols)
	}
	launch(s, "copy_scalar", func() {
		*dst = src.data[0]
	})
}

// Launch enqueues a caller-supplied kernel body on the stream, counted under
// the given kernel name. It is the extension point for model families that
// need fused passes beyond the fixed kernel set (e.g. the multinomial
// loss-and-gradient driver).
func Launch(s *Stream, kernel string, op func()) {
	launch(s, kernel, op)
}
