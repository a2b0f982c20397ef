package nn

import (
	"errors"

	"camviz/tensor"
)

// ErrNoActivation is returned when a capture is read before any forward pass.
var ErrNoActivation = errors.New("no activation captured")

// ErrNoGradient is returned when a capture's gradient is read before a
// backward pass has run since the last forward pass.
var ErrNoGradient = errors.New("no gradient captured")

// Capture is a scoped subscription on one layer's output. It holds the most
// recent forward activation and, once a backward pass has propagated through
// the layer, the gradient arriving at that output. A new forward pass
// overwrites the activation and invalidates the gradient.
//
// Captures are only written between sequential model passes, so no locking is
// needed; callers must not interleave another pass between triggering
// backward and reading the gradient.
type Capture struct {
	activation *tensor.Tensor
	gradient   *tensor.Tensor
	detached   bool
}

// LastActivation returns the most recently captured layer output.
func (c *Capture) LastActivation() (*tensor.Tensor, error) {
	if c.activation == nil {
		return nil, ErrNoActivation
	}
	return c.activation, nil
}

// LastGradient returns the gradient captured by the most recent backward
// pass. It fails if no backward pass has run since the last forward pass.
func (c *Capture) LastGradient() (*tensor.Tensor, error) {
	if c.gradient == nil {
		return nil, ErrNoGradient
	}
	return c.gradient, nil
}

// Detach permanently removes the subscription. Subsequent passes no longer
// update the captured state. Algorithms must detach their captures when
// discarded so the model stops paying the capture cost on every pass.
func (c *Capture) Detach() {
	c.detached = true
	c.activation = nil
	c.gradient = nil
}

func (c *Capture) recordActivation(out *tensor.Tensor) {
	c.activation = out
	c.gradient = nil // stale after a new forward pass
}

func (c *Capture) recordGradient(grad *tensor.Tensor) {
	c.gradient = grad
}
