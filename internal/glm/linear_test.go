package glm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

func TestForwardNoIntercept(t *testing.T) {
	s := device.NewStream()
	defer s.Close()

	// C=2, D=3, N=4 — asymmetric on purpose.
	d := NewDims(2, 3, false)
	x := device.ViewOf([]float32{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		1, 1, 1,
	}, 4, 3, device.RowMajor)
	w := device.ViewOf([]float32{
		1, 2, 3,
		4, 5, 6,
	}, 2, 3, device.RowMajor)
	z := device.NewMatrix(2, 4, device.RowMajor)

	Forward(s, z, x, w, d)
	s.Synchronize()

	want := []float32{1, 2, 3, 6, 4, 5, 6, 15}
	got := z.ToHost()
	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-5, "W*X^T at %d", i)
	}
}

func TestForwardWithIntercept(t *testing.T) {
	s := device.NewStream()
	defer s.Close()

	// C=3, D=2, N=2 so the broadcast axis is unambiguous (C != N).
	d := NewDims(3, 2, true)
	x := device.ViewOf([]float32{
		1, 0,
		0, 1,
	}, 2, 2, device.RowMajor)
	w := device.ViewOf([]float32{
		1, 2, 10,
		3, 4, 20,
		5, 6, 30,
	}, 3, 3, device.RowMajor)
	z := device.NewMatrix(3, 2, device.RowMajor)

	Forward(s, z, x, w, d)
	s.Synchronize()

	// Row i of Z is Wfeat[i]·X^T plus bias[i] in every sample column.
	want := []float32{11, 12, 23, 24, 35, 36}
	got := z.ToHost()
	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-5, "Wfeat*X^T + bias at %d", i)
	}
}

func TestForwardIdempotent(t *testing.T) {
	s := device.NewStream()
	defer s.Close()

	d := NewDims(1, 2, true)
	x := device.ViewOf([]float32{1, 2, 3, 4, 5, 6}, 3, 2, device.RowMajor)
	w := device.ViewOf([]float32{0.5, -0.25, 1}, 1, 3, device.RowMajor)
	z := device.NewMatrix(1, 3, device.RowMajor)

	Forward(s, z, x, w, d)
	s.Synchronize()
	first := z.ToHost()

	Forward(s, z, x, w, d)
	s.Synchronize()
	second := z.ToHost()

	require.Equal(t, first, second, "repeated forward must be bitwise identical")
}

func TestBackwardOverwriteAndAccumulate(t *testing.T) {
	s := device.NewStream()
	defer s.Close()

	d := NewDims(2, 2, true)
	x := device.ViewOf([]float32{
		1, 2,
		3, 4,
		5, 6,
	}, 3, 2, device.RowMajor)
	dz := device.ViewOf([]float32{
		1, 1, 1,
		2, 0, -2,
	}, 2, 3, device.RowMajor)
	g := device.NewMatrix(2, 3, device.RowMajor)

	Backward(s, g, dz, x, d, true)
	s.Synchronize()
	first := g.ToHost()

	Backward(s, g, dz, x, d, true)
	s.Synchronize()
	require.Equal(t, first, g.ToHost(), "overwrite semantics must be repeatable")

	// Feature gradient: (1/3)*dZ*X.
	require.InDelta(t, float32(3), first[0], 1e-5)  // (1+3+5)/3
	require.InDelta(t, float32(4), first[1], 1e-5)  // (2+4+6)/3
	require.InDelta(t, float32(-8.0/3), first[3], 1e-5)
	require.InDelta(t, float32(-8.0/3), first[4], 1e-5)
	// Bias gradient: row mean of dZ.
	require.InDelta(t, float32(1), first[2], 1e-6)
	require.InDelta(t, float32(0), first[5], 1e-6)

	// Accumulate doubles the feature block but never the bias column.
	Backward(s, g, dz, x, d, false)
	s.Synchronize()
	acc := g.ToHost()
	require.InDelta(t, 2*first[0], acc[0], 1e-5)
	require.InDelta(t, 2*first[1], acc[1], 1e-5)
	require.InDelta(t, 2*first[3], acc[3], 1e-5)
	require.InDelta(t, 2*first[4], acc[4], 1e-5)
	require.InDelta(t, first[2], acc[2], 1e-6, "bias write is unconditional")
	require.InDelta(t, first[5], acc[5], 1e-6, "bias write is unconditional")
}

func TestDims(t *testing.T) {
	d := NewDims(3, 4, true)
	require.Equal(t, 5, d.Cols())
	require.Equal(t, 15, d.NParam())

	d = NewDims(1, 4, false)
	require.Equal(t, 4, d.Cols())
	require.Equal(t, 4, d.NParam())
}
