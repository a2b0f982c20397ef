package layers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"camviz/tensor"
)

func TestLinear_Forward(t *testing.T) {
	lin := NewLinear(3, 2)
	// W = [[1,2,3],[4,5,6]], B = [0.5, -0.5]
	lin.W.Set(0, 0, 1)
	lin.W.Set(0, 1, 2)
	lin.W.Set(0, 2, 3)
	lin.W.Set(1, 0, 4)
	lin.W.Set(1, 1, 5)
	lin.W.Set(1, 2, 6)
	lin.B.SetVec(0, 0.5)
	lin.B.SetVec(1, -0.5)

	out, err := lin.Forward(tensor.NewWithData([]float64{1, 1, 1}))
	require.NoError(t, err)
	require.InDelta(t, 6.5, out.Data[0], 1e-12)
	require.InDelta(t, 14.5, out.Data[1], 1e-12)
}

func TestLinear_ForwardSizeMismatch(t *testing.T) {
	lin := NewLinear(3, 2)
	_, err := lin.Forward(tensor.NewWithData([]float64{1, 2}))
	require.Error(t, err)
}

func TestLinear_Backward(t *testing.T) {
	lin := NewLinear(2, 2)
	lin.W.Set(0, 0, 1)
	lin.W.Set(0, 1, 2)
	lin.W.Set(1, 0, 3)
	lin.W.Set(1, 1, 4)

	x := tensor.NewWithData([]float64{5, 7})
	_, err := lin.Forward(x)
	require.NoError(t, err)

	g := tensor.NewWithData([]float64{1, -1})
	gin, err := lin.Backward(g)
	require.NoError(t, err)

	// gradW = g ⊗ x
	require.InDelta(t, 5.0, lin.GradW().At(0, 0), 1e-12)
	require.InDelta(t, 7.0, lin.GradW().At(0, 1), 1e-12)
	require.InDelta(t, -5.0, lin.GradW().At(1, 0), 1e-12)
	require.InDelta(t, -7.0, lin.GradW().At(1, 1), 1e-12)
	// gradB = g
	require.InDelta(t, 1.0, lin.GradB().AtVec(0), 1e-12)
	require.InDelta(t, -1.0, lin.GradB().AtVec(1), 1e-12)
	// gradIn = Wᵀ·g
	require.InDelta(t, 1*1+3*(-1), gin.Data[0], 1e-12)
	require.InDelta(t, 2*1+4*(-1), gin.Data[1], 1e-12)
}

func TestLinear_ZeroGrad(t *testing.T) {
	lin := NewLinear(2, 1)
	lin.W.Set(0, 0, 1)
	lin.W.Set(0, 1, 1)
	_, err := lin.Forward(tensor.NewWithData([]float64{1, 2}))
	require.NoError(t, err)
	_, err = lin.Backward(tensor.NewWithData([]float64{1}))
	require.NoError(t, err)
	require.NotZero(t, lin.GradW().At(0, 0))

	lin.ZeroGrad()
	require.Zero(t, lin.GradW().At(0, 0))
	require.Zero(t, lin.GradB().AtVec(0))
}

func TestLinear_BackwardBeforeForward(t *testing.T) {
	lin := NewLinear(2, 1)
	_, err := lin.Backward(tensor.NewWithData([]float64{1}))
	require.Error(t, err)
}
