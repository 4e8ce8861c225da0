package glm

import (
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

// Forward enqueues the affine map z <- W * X^T, with the bias column folded
// in when the descriptor fits an intercept: the bias vector (W's last
// column) is first broadcast into every sample column of z, then the
// feature sub-block accumulates onto it. z is overwritten either way.
//
// Shapes: z is C x N, x is N x D (either storage order), w is C x Cols().
func Forward(s *device.Stream, z, x, w *device.Matrix, d Dims) {
	checkForwardShapes(z, x, w, d)
	if !d.FitIntercept {
		device.Gemm(s, false, true, 1, w, x, 0, z)
		return
	}
	wfeat := w.ColRange(0, d.Features)
	bias := w.Col(d.Features)
	device.BroadcastRows(s, z, bias)
	device.Gemm(s, false, true, 1, wfeat, x, 1, z)
}

// Backward enqueues the adjoint of the affine map. The feature-weight block
// receives (1/N) * dZ * X, overwriting when setZero is true and
// accumulating otherwise. The bias column, when present, receives the
// per-class mean of dZ across samples; that write is always an overwrite
// and does not participate in the accumulate flag.
//
// Shapes: dz is C x N, x is N x D, g is C x Cols().
func Backward(s *device.Stream, g, dz, x *device.Matrix, d Dims, setZero bool) {
	checkBackwardShapes(g, dz, x, d)
	beta := float32(1)
	if setZero {
		beta = 0
	}
	gfeat := g
	if d.FitIntercept {
		gfeat = g.ColRange(0, d.Features)
	}
	n := x.Rows()
	device.Gemm(s, false, false, 1/float32(n), dz, x, beta, gfeat)
	if d.FitIntercept {
		device.MeanRows(s, g.Col(d.Features), dz)
	}
}

func checkForwardShapes(z, x, w *device.Matrix, d Dims) {
	if z.Rows() != d.Classes || z.Cols() != x.Rows() {
		log.Panic().Msgf("glm: forward output is %dx%d, want %dx%d", z.Rows(), z.Cols(), d.Classes, x.Rows())
	}
	if x.Cols() != d.Features {
		log.Panic().Msgf("glm: data has %d features, descriptor has %d", x.Cols(), d.Features)
	}
	if w.Rows() != d.Classes || w.Cols() != d.Cols() {
		log.Panic().Msgf("glm: weights are %dx%d, want %dx%d", w.Rows(), w.Cols(), d.Classes, d.Cols())
	}
}

func checkBackwardShapes(g, dz, x *device.Matrix, d Dims) {
	if dz.Rows() != d.Classes || dz.Cols() != x.Rows() {
		log.Panic().Msgf("glm: dZ is %dx%d, want %dx%d", dz.Rows(), dz.Cols(), d.Classes, x.Rows())
	}
	if x.Cols() != d.Features {
		log.Panic().Msgf("glm: data has %d features, descriptor has %d", x.Cols(), d.Features)
	}
	if g.Rows() != d.Classes || g.Cols() != d.Cols() {
		log.Panic().Msgf("glm: gradient is %dx%d, want %dx%d", g.Rows(), g.Cols(), d.Classes, d.Cols())
	}
}
