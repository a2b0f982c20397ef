package layers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"camviz/tensor"
)

func TestConv2D_ForwardVsReference(t *testing.T) {
	inC, outC, kh, kw := 2, 3, 3, 3
	H, W := 5, 5
	conv := NewConv2D(inC, outC, kh, kw)
	rng := rand.New(rand.NewSource(1))
	for i := range conv.W.Data {
		conv.W.Data[i] = rng.Float64() - 0.5
	}
	for i := range conv.B.Data {
		conv.B.Data[i] = rng.Float64() - 0.5
	}
	x := tensor.New(inC, H, W)
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}

	out, err := conv.Forward(x)
	require.NoError(t, err)
	outH, outW := H-kh+1, W-kw+1
	require.Equal(t, []int{outC, outH, outW}, out.Shape)

	// Reference: compute manually
	for oc := 0; oc < outC; oc++ {
		for y := 0; y < outH; y++ {
			for x2 := 0; x2 < outW; x2++ {
				want := conv.B.Data[oc]
				for ic := 0; ic < inC; ic++ {
					for dy := 0; dy < kh; dy++ {
						for dx := 0; dx < kw; dx++ {
							want += x.At(ic, y+dy, x2+dx) * conv.W.At(oc, ic, dy, dx)
						}
					}
				}
				require.InDelta(t, want, out.At(oc, y, x2), 1e-10)
			}
		}
	}
}

func TestConv2D_ForwardBatch(t *testing.T) {
	conv := NewConv2D(1, 1, 2, 2)
	for i := range conv.W.Data {
		conv.W.Data[i] = 1
	}
	x := tensor.New(1, 1, 3, 3)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	out, err := conv.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 2, 2}, out.Shape)
	// Each output cell sums a 2x2 window.
	require.InDelta(t, 0+1+3+4, out.Data[0], 1e-12)
	require.InDelta(t, 4+5+7+8, out.Data[3], 1e-12)
}

func TestConv2D_ChannelMismatch(t *testing.T) {
	conv := NewConv2D(3, 4, 3, 3)
	_, err := conv.Forward(tensor.New(2, 5, 5))
	require.Error(t, err)
}

func TestConv2D_BackwardBeforeForward(t *testing.T) {
	conv := NewConv2D(1, 1, 2, 2)
	_, err := conv.Backward(tensor.New(1, 2, 2))
	require.Error(t, err)
}

func TestConv2D_BackwardGradients(t *testing.T) {
	// 1x1 kernel on a 1-channel input makes all gradients easy to state:
	// output = w*x + b, so gradW = Σ g*x, gradB = Σ g, gradIn = w*g.
	conv := NewConv2D(1, 1, 1, 1)
	conv.W.Data[0] = 2
	x := &tensor.Tensor{Data: []float64{1, 2, 3, 4}, Shape: []int{1, 2, 2}}
	_, err := conv.Forward(x)
	require.NoError(t, err)

	g := &tensor.Tensor{Data: []float64{1, 0, 0, 1}, Shape: []int{1, 2, 2}}
	gin, err := conv.Backward(g)
	require.NoError(t, err)

	require.InDelta(t, 1*1+4*1, conv.GradW().Data[0], 1e-12)
	require.InDelta(t, 2.0, conv.GradB().Data[0], 1e-12)
	require.InDelta(t, 2.0, gin.Data[0], 1e-12)
	require.InDelta(t, 0.0, gin.Data[1], 1e-12)
	require.InDelta(t, 2.0, gin.Data[3], 1e-12)
}

func TestConv2D_GradAccumulationAndZero(t *testing.T) {
	conv := NewConv2D(1, 1, 1, 1)
	conv.W.Data[0] = 1
	x := &tensor.Tensor{Data: []float64{1, 1}, Shape: []int{1, 1, 2}}
	g := &tensor.Tensor{Data: []float64{1, 1}, Shape: []int{1, 1, 2}}

	_, err := conv.Forward(x)
	require.NoError(t, err)
	_, err = conv.Backward(g)
	require.NoError(t, err)
	first := conv.GradW().Data[0]

	// Without zeroing, a second backward pass accumulates.
	_, err = conv.Backward(g)
	require.NoError(t, err)
	require.InDelta(t, 2*first, conv.GradW().Data[0], 1e-12)

	conv.ZeroGrad()
	require.Zero(t, conv.GradW().Data[0])
	require.Zero(t, conv.GradB().Data[0])

	_, err = conv.Backward(g)
	require.NoError(t, err)
	require.InDelta(t, first, conv.GradW().Data[0], 1e-12)
}
