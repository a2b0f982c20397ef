package layers

import (
	"fmt"

	"camviz/tensor"
)

// AvgPool2D downsamples spatial dimensions by averaging non-overlapping
// p×p windows.
type AvgPool2D struct {
	poolSize  int
	lastShape []int
}

// NewAvgPool2D creates an average-pooling layer with window size p.
func NewAvgPool2D(p int) *AvgPool2D {
	return &AvgPool2D{poolSize: p}
}

// Forward pools the input. Input: [C,H,W] or [B,C,H,W]; H and W must be
// divisible by the pool size.
func (a *AvgPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape
	var B, C, H, W int
	switch len(shape) {
	case 3:
		B, C, H, W = 1, shape[0], shape[1], shape[2]
	case 4:
		B, C, H, W = shape[0], shape[1], shape[2], shape[3]
	default:
		return nil, ErrShape
	}
	p := a.poolSize
	if H%p != 0 || W%p != 0 {
		return nil, fmt.Errorf("avgpool2d: input %dx%d not divisible by pool size %d", H, W, p)
	}
	a.lastShape = shape

	outH, outW := H/p, W/p
	outShape := []int{C, outH, outW}
	if len(shape) == 4 {
		outShape = []int{B, C, outH, outW}
	}
	out := tensor.New(outShape...)
	for b := 0; b < B; b++ {
		for c := 0; c < C; c++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					sum := 0.0
					for ph := 0; ph < p; ph++ {
						for pw := 0; pw < p; pw++ {
							ih := oh*p + ph
							jw := ow*p + pw
							sum += x.Data[((b*C+c)*H+ih)*W+jw]
						}
					}
					out.Data[((b*C+c)*outH+oh)*outW+ow] = sum / float64(p*p)
				}
			}
		}
	}
	return out, nil
}

// Backward spreads each output gradient evenly over its pooling window.
func (a *AvgPool2D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if a.lastShape == nil {
		return nil, fmt.Errorf("avgpool2d: no cached input for backward pass")
	}
	shape := a.lastShape
	var B, C, H, W int
	if len(shape) == 3 {
		B, C, H, W = 1, shape[0], shape[1], shape[2]
	} else {
		B, C, H, W = shape[0], shape[1], shape[2], shape[3]
	}
	p := a.poolSize
	outH, outW := H/p, W/p
	inv := 1.0 / float64(p*p)

	gradIn := tensor.New(shape...)
	for b := 0; b < B; b++ {
		for c := 0; c < C; c++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					g := gradOut.Data[((b*C+c)*outH+oh)*outW+ow] * inv
					for ph := 0; ph < p; ph++ {
						for pw := 0; pw < p; pw++ {
							ih := oh*p + ph
							jw := ow*p + pw
							gradIn.Data[((b*C+c)*H+ih)*W+jw] = g
						}
					}
				}
			}
		}
	}
	return gradIn, nil
}

// ZeroGrad is a no-op; pooling has no parameters.
func (a *AvgPool2D) ZeroGrad() {}

// Tag identifies the layer configuration.
func (a *AvgPool2D) Tag() string { return fmt.Sprintf("AvgPool2D_%d", a.poolSize) }
