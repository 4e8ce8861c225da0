package glm

import (
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

// driverFunc is the loss-and-gradient pass bound into an objective.
type driverFunc func(s *device.Stream, y *device.Matrix, z PreActivation, lossOut *device.Matrix) LossGradient

// Objective composes the linear transform pair with one family's loss
// capability into a single loss_grad operation. It is stateless; the same
// instance serves every evaluation of one optimization run.
type Objective struct {
	dims   Dims
	driver driverFunc
}

// NewObjective binds a loss family to a dimension descriptor. Families
// providing their own fused driver (DZDriver) use it; elementwise families
// use the default driver, which requires a single-class descriptor. An
// unsupported family is a construction-time contract violation.
func NewObjective[L any](dims Dims, loss L) *Objective {
	switch f := any(loss).(type) {
	case DZDriver:
		return &Objective{dims: dims, driver: f.LossAndDZ}
	case Loss:
		if dims.Classes != 1 {
			log.Panic().Msgf("glm: elementwise loss family %T requires C=1, descriptor has %d classes", loss, dims.Classes)
		}
		return &Objective{
			dims: dims,
			driver: func(s *device.Stream, y *device.Matrix, z PreActivation, lossOut *device.Matrix) LossGradient {
				return LossAndDZ(s, f, y, z, lossOut)
			},
		}
	}
	log.Panic().Msgf("glm: %T implements neither Loss nor DZDriver", loss)
	return nil
}

// Dims returns the objective's dimension descriptor.
func (o *Objective) Dims() Dims { return o.dims }

// LossGrad enqueues one full evaluation: forward into the scratch buffer,
// fused loss pass transforming the scratch in place and reducing the scalar
// into lossOut, then backward into g. The ordering is mandatory: backward
// consumes the loss-transformed scratch, so it must run after the loss pass
// and before any further forward clobbers it.
func (o *Objective) LossGrad(s *device.Stream, w, g, x, y, z, lossOut *device.Matrix) {
	Forward(s, z, x, w, o.dims)
	dz := o.driver(s, y, NewPreActivation(z), lossOut)
	Backward(s, g, dz.Matrix(), x, o.dims, true)
}
