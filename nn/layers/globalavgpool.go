package layers

import (
	"fmt"

	"camviz/tensor"
)

// GlobalAvgPool reduces each channel's spatial map to its mean, producing a
// flat per-channel vector. Batch size must be 1.
type GlobalAvgPool struct {
	lastShape []int
}

// NewGlobalAvgPool creates a global average pooling layer.
func NewGlobalAvgPool() *GlobalAvgPool { return &GlobalAvgPool{} }

// Forward reduces [C,H,W] or [1,C,H,W] to a flat [C] vector.
func (g *GlobalAvgPool) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape
	var C, H, W int
	switch len(shape) {
	case 3:
		C, H, W = shape[0], shape[1], shape[2]
	case 4:
		if shape[0] != 1 {
			return nil, fmt.Errorf("globalavgpool: batch size must be 1, got %d", shape[0])
		}
		C, H, W = shape[1], shape[2], shape[3]
	default:
		return nil, ErrShape
	}
	g.lastShape = shape

	out := tensor.New(C)
	area := float64(H * W)
	for c := 0; c < C; c++ {
		sum := 0.0
		for i := 0; i < H*W; i++ {
			sum += x.Data[c*H*W+i]
		}
		out.Data[c] = sum / area
	}
	return out, nil
}

// Backward spreads each channel gradient evenly over the channel's spatial
// map.
func (g *GlobalAvgPool) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if g.lastShape == nil {
		return nil, fmt.Errorf("globalavgpool: no cached input for backward pass")
	}
	shape := g.lastShape
	H := shape[len(shape)-2]
	W := shape[len(shape)-1]
	C := shape[len(shape)-3]
	if len(gradOut.Data) != C {
		return nil, fmt.Errorf("globalavgpool: expected %d channel gradients, got %d", C, len(gradOut.Data))
	}

	inv := 1.0 / float64(H*W)
	gradIn := tensor.New(shape...)
	for c := 0; c < C; c++ {
		gv := gradOut.Data[c] * inv
		for i := 0; i < H*W; i++ {
			gradIn.Data[c*H*W+i] = gv
		}
	}
	return gradIn, nil
}

// ZeroGrad is a no-op; pooling has no parameters.
func (g *GlobalAvgPool) ZeroGrad() {}

// Tag identifies the layer.
func (g *GlobalAvgPool) Tag() string { return "GlobalAvgPool" }
