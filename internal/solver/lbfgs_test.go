package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// Convex quadratic with known minimum: f(w) = 0.5*sum c_i*(w_i - m_i)^2.
func quadratic(c, m []float32) Objective {
	return func(w, grad []float32) float32 {
		var loss float32
		for i := range w {
			d := w[i] - m[i]
			grad[i] = c[i] * d
			loss += 0.5 * c[i] * d * d
		}
		return loss
	}
}

func TestMinimizeQuadratic(t *testing.T) {
	f := quadratic([]float32{1, 10, 0.5}, []float32{3, -2, 7})
	l, err := New(Config{Tol: 1e-4})
	require.NoError(t, err)

	w := []float32{0, 0, 0}
	res, err := l.Minimize(context.Background(), f, w)
	require.NoError(t, err)
	require.True(t, res.Converged, "quadratic should converge: %+v", res)
	require.InDelta(t, float32(3), w[0], 1e-3)
	require.InDelta(t, float32(-2), w[1], 1e-3)
	require.InDelta(t, float32(7), w[2], 1e-3)
	require.InDelta(t, float32(0), res.Loss, 1e-6)
}

func TestMinimizeBadlyScaled(t *testing.T) {
	// Condition number 1e4; plain gradient descent crawls here, the
	// curvature history should not.
	f := quadratic([]float32{1e-2, 1e2}, []float32{1, 1})
	l, err := New(Config{MaxIter: 200, Tol: 1e-4})
	require.NoError(t, err)

	w := []float32{-5, 5}
	res, err := l.Minimize(context.Background(), f, w)
	require.NoError(t, err)
	require.True(t, res.Converged, "%+v", res)
	require.InDelta(t, float32(1), w[0], 2e-2)
	require.InDelta(t, float32(1), w[1], 1e-3)
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Memory: -1})
	require.Error(t, err)

	_, err = New(Config{Armijo: 2})
	require.Error(t, err)

	l, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, 10, l.cfg.Memory)
	require.Equal(t, 100, l.cfg.MaxIter)
}

func TestMinimizeRespectsContext(t *testing.T) {
	f := quadratic([]float32{1}, []float32{100})
	l, err := New(Config{Tol: 1e-12})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Minimize(ctx, f, []float32{0})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAlreadyConverged(t *testing.T) {
	f := quadratic([]float32{1}, []float32{2})
	l, err := New(Config{})
	require.NoError(t, err)

	w := []float32{2}
	res, err := l.Minimize(context.Background(), f, w)
	require.NoError(t, err)
	require.True(t, res.Converged)
	require.Equal(t, 0, res.Iters)
	require.Equal(t, 1, res.Evals)
}
