package glm

import (
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

// Loss is the per-element loss capability of a model family: a pure loss
// value and its derivative with respect to the pre-activation, both
// evaluated independently per (sample, class) pair. The family is fixed for
// the lifetime of one optimization run, so the capability is bound at
// objective construction rather than dispatched per element.
type Loss interface {
	Value(y, z float32) float32
	Deriv(y, z float32) float32
}

// DZDriver is the fused loss-and-gradient pass. Families with more than one
// class (e.g. multinomial) cannot express their loss elementwise and supply
// their own driver; it must honor the same buffer contract as the default:
// the scalar written to lossOut is the mean loss, and the pre-activation
// buffer is consumed and returned holding the gradient with respect to the
// pre-activation.
type DZDriver interface {
	LossAndDZ(s *device.Stream, y *device.Matrix, z PreActivation, lossOut *device.Matrix) LossGradient
}

// PreActivation tags the scratch buffer while it holds the output of the
// forward pass. It is consumed by the loss pass; holding on to it afterwards
// reads the wrong phase of the buffer.
type PreActivation struct {
	mat *device.Matrix
}

// NewPreActivation wraps a freshly written forward output.
func NewPreActivation(m *device.Matrix) PreActivation {
	return PreActivation{mat: m}
}

// Matrix exposes the underlying buffer for the loss pass.
func (p PreActivation) Matrix() *device.Matrix { return p.mat }

// LossGradient tags the same buffer once it has been overwritten in place
// with the loss derivative. Only this phase may feed the backward pass.
type LossGradient struct {
	mat *device.Matrix
}

// Matrix exposes the underlying buffer for the backward pass.
func (g LossGradient) Matrix() *device.Matrix { return g.mat }

// LossAndDZ is the default fused driver, valid for single-class families.
// One fused map-sum pass reduces the mean loss into lossOut, then the
// pre-activation buffer is overwritten elementwise with the loss derivative.
// The type parameter binds the family at compile time, so the per-element
// calls devirtualize.
func LossAndDZ[L Loss](s *device.Stream, loss L, y *device.Matrix, z PreActivation, lossOut *device.Matrix) LossGradient {
	zm := z.Matrix()
	if zm.Rows() != 1 {
		log.Panic().Msgf("glm: default loss driver requires C=1, pre-activation is %dx%d", zm.Rows(), zm.Cols())
	}
	n := zm.Cols()
	if y.VecLen() != n {
		log.Panic().Msgf("glm: %d targets for %d samples", y.VecLen(), n)
	}
	device.MapSum(s, 1/float32(n), loss.Value, y, zm, lossOut)
	device.ZipInPlace(s, loss.Deriv, y, zm)
	return LossGradient{mat: zm}
}
