// Package cam computes class activation maps: spatial heatmaps attributing a
// classifier's confidence in one class to regions of the input image. Four
// mappers share one contract; all of them read a captured activation (and,
// for the gradient-based ones, a captured gradient) from one convolutional
// layer of the model and combine them into a normalized single-channel map.
package cam

import (
	"fmt"

	"camviz/tensor"
)

// Result is the output of one map computation.
type Result struct {
	// Map is a single-channel [H,W] tensor with values in [0,1], at the
	// target layer's spatial resolution.
	Map *tensor.Tensor
	// ClassIndex names the class the map explains; the caller's index when
	// fixed, otherwise the model's top-1 prediction.
	ClassIndex int
	// Probability is the softmax confidence in ClassIndex.
	Probability float64
}

// Mapper computes a class activation map for one input image. Passing a
// negative classIndex lets the mapper pick the model's top-1 class.
type Mapper interface {
	ComputeMap(input *tensor.Tensor, classIndex int) (*Result, error)
	// Close releases the mapper's layer subscription. The model keeps
	// paying the capture cost on every pass until Close is called.
	Close()
}

// featureDims validates a captured feature tensor of shape [C,H,W] or
// [1,C,H,W] and returns its dimensions.
func featureDims(t *tensor.Tensor) (C, H, W int, err error) {
	switch len(t.Shape) {
	case 3:
		return t.Shape[0], t.Shape[1], t.Shape[2], nil
	case 4:
		if t.Shape[0] != 1 {
			return 0, 0, 0, fmt.Errorf("captured activation has batch size %d, want 1", t.Shape[0])
		}
		return t.Shape[1], t.Shape[2], t.Shape[3], nil
	default:
		return 0, 0, 0, fmt.Errorf("captured activation must be 3D or 4D, got %v", t.Shape)
	}
}

// combine computes map[h,w] = Σ_c weights[c]·act[c,h,w].
func combine(act *tensor.Tensor, weights []float64) (*tensor.Tensor, error) {
	C, H, W, err := featureDims(act)
	if err != nil {
		return nil, err
	}
	if len(weights) != C {
		return nil, fmt.Errorf("have %d channel weights for %d channels", len(weights), C)
	}
	out := tensor.New(H, W)
	for c := 0; c < C; c++ {
		w := weights[c]
		base := c * H * W
		for i := 0; i < H*W; i++ {
			out.Data[i] += w * act.Data[base+i]
		}
	}
	return out, nil
}

// normalizeMap min-max scales m into [0,1]. A constant map has no spatial
// signal to scale, so it normalizes to the all-zero map rather than
// propagating a division by zero.
func normalizeMap(m *tensor.Tensor) *tensor.Tensor {
	min, max := m.MinMax()
	out := tensor.New(m.Shape...)
	if max == min {
		return out
	}
	inv := 1.0 / (max - min)
	for i, v := range m.Data {
		out.Data[i] = (v - min) * inv
	}
	return out
}
