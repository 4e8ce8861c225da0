package glm

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

// Squared is the least-squares family: loss 0.5*(z-y)^2, derivative z-y.
type Squared struct{}

func (Squared) Value(y, z float32) float32 {
	d := z - y
	return 0.5 * d * d
}

func (Squared) Deriv(y, z float32) float32 {
	return z - y
}

// Logistic is the binary classification family on {0, 1} targets. Targets
// are mapped to ±1 internally; the loss is the stable softplus form
// log(1 + exp(-t*z)).
type Logistic struct{}

func (Logistic) Value(y, z float32) float32 {
	t := 2*y - 1
	return softplus(-t * z)
}

func (Logistic) Deriv(y, z float32) float32 {
	t := 2*y - 1
	return -t * sigmoid(-t*z)
}

// softplus computes log(1+exp(x)) without overflowing for large x.
func softplus(x float32) float32 {
	if x > 0 {
		return x + float32(math.Log1p(math.Exp(float64(-x))))
	}
	return float32(math.Log1p(math.Exp(float64(x))))
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(float64(-x))))
}

// Softmax is the multinomial family over C classes. Its loss couples the
// classes of one sample, so it cannot be expressed as the elementwise
// {Value, Deriv} pair; it overrides the fused driver instead. Targets are
// class indices stored as float32.
type Softmax struct {
	Classes int
}

// LossAndDZ computes the mean cross-entropy via a per-sample stable
// log-sum-exp and overwrites the pre-activation column with
// softmax(z) - one_hot(y). The 1/N normalization of the gradient is applied
// by the backward pass, matching the default driver's split.
func (f Softmax) LossAndDZ(s *device.Stream, y *device.Matrix, z PreActivation, lossOut *device.Matrix) LossGradient {
	zm := z.Matrix()
	c, n := zm.Dims()
	if c != f.Classes || c < 2 {
		log.Panic().Msgf("glm: softmax over %d classes got %dx%d pre-activation", f.Classes, c, n)
	}
	if y.VecLen() != n {
		log.Panic().Msgf("glm: %d targets for %d samples", y.VecLen(), n)
	}
	device.Launch(s, "softmax_loss_dz", func() {
		var total float64
		for j := 0; j < n; j++ {
			target := int(y.VecAt(j))
			if target < 0 || target >= c {
				log.Panic().Msgf("glm: target class %d out of range [0,%d)", target, c)
			}
			maxz := zm.At(0, j)
			for i := 1; i < c; i++ {
				if v := zm.At(i, j); v > maxz {
					maxz = v
				}
			}
			var sum float64
			for i := 0; i < c; i++ {
				sum += math.Exp(float64(zm.At(i, j) - maxz))
			}
			lse := float64(maxz) + math.Log(sum)
			total += lse - float64(zm.At(target, j))
			for i := 0; i < c; i++ {
				p := float32(math.Exp(float64(zm.At(i, j))-lse))
				if i == target {
					p -= 1
				}
				zm.Set(i, j, p)
			}
		}
		lossOut.Set(0, 0, float32(total/float64(n)))
	})
	return LossGradient{mat: zm}
}
