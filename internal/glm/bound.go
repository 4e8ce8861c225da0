package glm

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

// Bound pins one dataset and the scratch buffers to an objective for the
// lifetime of an optimization run and exposes the callable the outer
// optimizer drives. The scratch pre-activation buffer carries no state
// between evaluations; at most one evaluation may be in flight per Bound at
// a time (no internal locking — concurrent use is a caller contract
// violation).
type Bound struct {
	obj     *Objective
	stream  *device.Stream
	x       *device.Matrix
	y       *device.Matrix
	z       *device.Matrix
	lossDev *device.Matrix
}

// Bind allocates the scratch buffers for a dataset of x.Rows() samples and
// validates the dataset against the objective's descriptor. x and y are
// borrowed for the lifetime of the Bound.
func Bind(obj *Objective, s *device.Stream, x, y *device.Matrix) *Bound {
	d := obj.Dims()
	if x.Cols() != d.Features {
		log.Panic().Msgf("glm: dataset has %d features, descriptor has %d", x.Cols(), d.Features)
	}
	if y.VecLen() != x.Rows() {
		log.Panic().Msgf("glm: %d targets for %d samples", y.VecLen(), x.Rows())
	}
	return &Bound{
		obj:     obj,
		stream:  s,
		x:       x,
		y:       y,
		z:       device.NewMatrix(d.Classes, x.Rows(), device.RowMajor),
		lossDev: device.NewMatrix(1, 1, device.RowMajor),
	}
}

// NParam is the flat parameter count Eval expects.
func (b *Bound) NParam() int { return b.obj.Dims().NParam() }

// Eval runs one loss-and-gradient evaluation at the given flat weights. The
// gradient is written into gradOut as an out-parameter; the returned scalar
// is the mean loss. The call is synchronous: all device work is enqueued in
// program order and one barrier precedes the host read of the scalar.
func (b *Bound) Eval(flatWeights, gradOut []float32) float32 {
	d := b.obj.Dims()
	if len(flatWeights) != d.NParam() {
		log.Panic().Msgf("glm: got %d weights, want %d", len(flatWeights), d.NParam())
	}
	if len(gradOut) != d.NParam() {
		log.Panic().Msgf("glm: gradient buffer holds %d, want %d", len(gradOut), d.NParam())
	}

	start := time.Now()
	w := device.ViewOf(flatWeights, d.Classes, d.Cols(), device.RowMajor)
	g := device.ViewOf(gradOut, d.Classes, d.Cols(), device.RowMajor)

	b.obj.LossGrad(b.stream, w, g, b.x, b.y, b.z, b.lossDev)

	var loss float32
	device.CopyScalar(b.stream, &loss, b.lossDev)
	b.stream.Synchronize()

	evalTotal.Inc()
	evalDuration.Observe(time.Since(start).Seconds())
	return loss
}
