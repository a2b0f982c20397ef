package nn

import (
	"fmt"

	"camviz/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	// Backward computes gradients and propagates them.
	// It takes the gradient of the loss with respect to the module's output,
	// and returns the gradient of the loss with respect to the module's input.
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	// ZeroGrad clears the module's accumulated parameter gradients.
	ZeroGrad()
}

// Sequential chains named Modules in order. Layer names identify the
// attachment point for captures (see Observe).
type Sequential struct {
	names     []string
	layers    []Module
	observers map[int][]*Capture
}

// NewSequential returns an empty model.
func NewSequential() *Sequential {
	return &Sequential{observers: make(map[int][]*Capture)}
}

// Add appends a named layer and returns the model for chaining.
func (s *Sequential) Add(name string, m Module) *Sequential {
	s.names = append(s.names, name)
	s.layers = append(s.layers, m)
	return s
}

// Len returns the number of layers.
func (s *Sequential) Len() int { return len(s.layers) }

// ModuleAt returns the i-th layer.
func (s *Sequential) ModuleAt(i int) Module { return s.layers[i] }

// Layer returns the first layer registered under name.
func (s *Sequential) Layer(name string) (Module, error) {
	for i, n := range s.names {
		if n == name {
			return s.layers[i], nil
		}
	}
	return nil, fmt.Errorf("no layer named %q in model", name)
}

// Observe subscribes a capture to the output of the named layer. The capture
// records that layer's output on every forward pass and the gradient arriving
// at its output on every backward pass, until Detach is called.
func (s *Sequential) Observe(name string) (*Capture, error) {
	for i, n := range s.names {
		if n == name {
			c := &Capture{}
			s.observers[i] = append(s.observers[i], c)
			return c, nil
		}
	}
	return nil, fmt.Errorf("no layer named %q in model", name)
}

// Forward applies each layer in sequence and returns the final scores.
// Captures subscribed to a layer record its output as a side effect.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	var err error
	for i, layer := range s.layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", s.names[i], err)
		}
		s.notifyForward(i, out)
	}
	return out, nil
}

// Backward propagates seed (the gradient of a scalar with respect to the
// scores, e.g. a one-hot vector selecting one class) in reverse layer order.
// It returns the gradient with respect to the model input. Parameter
// gradients accumulate across calls; clear them with ZeroGrad first.
func (s *Sequential) Backward(seed *tensor.Tensor) (*tensor.Tensor, error) {
	grad := seed
	var err error
	for i := len(s.layers) - 1; i >= 0; i-- {
		// grad is the gradient at layer i's output; observers see it
		// before the layer consumes it.
		s.notifyBackward(i, grad)
		grad, err = s.layers[i].Backward(grad)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", s.names[i], err)
		}
	}
	return grad, nil
}

// ZeroGrad clears accumulated parameter gradients on every layer.
func (s *Sequential) ZeroGrad() {
	for _, layer := range s.layers {
		layer.ZeroGrad()
	}
}

func (s *Sequential) notifyForward(i int, out *tensor.Tensor) {
	s.observers[i] = prune(s.observers[i])
	for _, c := range s.observers[i] {
		c.recordActivation(out)
	}
	if len(s.observers[i]) == 0 {
		delete(s.observers, i)
	}
}

func (s *Sequential) notifyBackward(i int, grad *tensor.Tensor) {
	s.observers[i] = prune(s.observers[i])
	for _, c := range s.observers[i] {
		c.recordGradient(grad)
	}
	if len(s.observers[i]) == 0 {
		delete(s.observers, i)
	}
}

func prune(caps []*Capture) []*Capture {
	kept := caps[:0]
	for _, c := range caps {
		if !c.detached {
			kept = append(kept, c)
		}
	}
	return kept
}
