package layers

import (
	"fmt"

	"camviz/tensor"
)

// Flatten reshapes any tensor to 1D and restores the shape on backward.
type Flatten struct {
	lastShape []int
}

// NewFlatten creates a flatten layer.
func NewFlatten() *Flatten { return &Flatten{} }

// Forward returns a 1D copy of the input.
func (f *Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	f.lastShape = x.Shape
	y := tensor.New(len(x.Data))
	copy(y.Data, x.Data)
	return y, nil
}

// Backward restores the cached input shape.
func (f *Flatten) Backward(g *tensor.Tensor) (*tensor.Tensor, error) {
	if f.lastShape == nil {
		return nil, fmt.Errorf("flatten: no cached input for backward pass")
	}
	out := tensor.New(f.lastShape...)
	copy(out.Data, g.Data)
	return out, nil
}

// ZeroGrad is a no-op; flatten has no parameters.
func (f *Flatten) ZeroGrad() {}

// Tag identifies the layer.
func (f *Flatten) Tag() string { return "Flatten" }
