package layers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"camviz/tensor"
)

func TestAvgPool2D_ForwardVsReference(t *testing.T) {
	C, H, W, p := 2, 4, 4, 2
	x := tensor.New(C, H, W)
	rng := rand.New(rand.NewSource(2))
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	layer := NewAvgPool2D(p)
	out, err := layer.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{C, H / p, W / p}, out.Shape)

	// Reference: compute manually
	for c := 0; c < C; c++ {
		for oh := 0; oh < H/p; oh++ {
			for ow := 0; ow < W/p; ow++ {
				sum := 0.0
				for ph := 0; ph < p; ph++ {
					for pw := 0; pw < p; pw++ {
						sum += x.At(c, oh*p+ph, ow*p+pw)
					}
				}
				require.InDelta(t, sum/float64(p*p), out.At(c, oh, ow), 1e-10)
			}
		}
	}
}

func TestAvgPool2D_Backward(t *testing.T) {
	layer := NewAvgPool2D(2)
	x := tensor.New(1, 4, 4)
	_, err := layer.Forward(x)
	require.NoError(t, err)

	g := &tensor.Tensor{Data: []float64{4, 8, 12, 16}, Shape: []int{1, 2, 2}}
	gin, err := layer.Backward(g)
	require.NoError(t, err)
	require.Equal(t, x.Shape, gin.Shape)
	// Each window cell receives g/4.
	require.InDelta(t, 1.0, gin.At(0, 0, 0), 1e-12)
	require.InDelta(t, 1.0, gin.At(0, 1, 1), 1e-12)
	require.InDelta(t, 2.0, gin.At(0, 0, 2), 1e-12)
	require.InDelta(t, 4.0, gin.At(0, 3, 3), 1e-12)
}

func TestAvgPool2D_IndivisibleInput(t *testing.T) {
	layer := NewAvgPool2D(2)
	_, err := layer.Forward(tensor.New(1, 5, 4))
	require.Error(t, err)
}

func TestGlobalAvgPool_ForwardBackward(t *testing.T) {
	layer := NewGlobalAvgPool()
	x := tensor.New(1, 2, 2, 2)
	for i := range x.Data {
		x.Data[i] = float64(i + 1) // channel 0: 1..4, channel 1: 5..8
	}
	out, err := layer.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{2}, out.Shape)
	require.InDelta(t, 2.5, out.Data[0], 1e-12)
	require.InDelta(t, 6.5, out.Data[1], 1e-12)

	gin, err := layer.Backward(tensor.NewWithData([]float64{4, 8}))
	require.NoError(t, err)
	require.Equal(t, x.Shape, gin.Shape)
	require.InDelta(t, 1.0, gin.Data[0], 1e-12)
	require.InDelta(t, 2.0, gin.Data[7], 1e-12)
}

func TestGlobalAvgPool_RejectsBatches(t *testing.T) {
	layer := NewGlobalAvgPool()
	_, err := layer.Forward(tensor.New(2, 3, 4, 4))
	require.Error(t, err)
}

func TestReLU_Backward(t *testing.T) {
	layer := NewReLU()
	x := tensor.NewWithData([]float64{-2, 0, 3})
	out, err := layer.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 3}, out.Data)

	gin, err := layer.Backward(tensor.NewWithData([]float64{1, 1, 1}))
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 1}, gin.Data)
}

func TestFlatten_Roundtrip(t *testing.T) {
	layer := NewFlatten()
	x := tensor.New(2, 3, 4)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	out, err := layer.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{24}, out.Shape)

	back, err := layer.Backward(out)
	require.NoError(t, err)
	require.Equal(t, x.Shape, back.Shape)
	require.Equal(t, x.Data, back.Data)
}
