package layers

import (
	"fmt"

	"camviz/tensor"
)

// ReLU applies max(0, x) elementwise.
type ReLU struct {
	lastInput *tensor.Tensor
}

// NewReLU creates a new ReLU layer.
func NewReLU() *ReLU { return &ReLU{} }

// Forward applies the rectifier.
func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	r.lastInput = input
	return tensor.Relu(input), nil
}

// Backward masks the output gradient where the cached input was negative.
func (r *ReLU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if r.lastInput == nil {
		return nil, fmt.Errorf("relu: no cached input for backward pass")
	}
	if len(gradOut.Data) != len(r.lastInput.Data) {
		return nil, fmt.Errorf("relu: gradient size %d does not match input size %d", len(gradOut.Data), len(r.lastInput.Data))
	}
	gradIn := tensor.New(r.lastInput.Shape...)
	for i := range gradIn.Data {
		if r.lastInput.Data[i] > 0 {
			gradIn.Data[i] = gradOut.Data[i]
		}
	}
	return gradIn, nil
}

// ZeroGrad is a no-op; ReLU has no parameters.
func (r *ReLU) ZeroGrad() {}

// Tag identifies the layer.
func (r *ReLU) Tag() string { return "ReLU" }
