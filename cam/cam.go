package cam

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"camviz/nn"
	"camviz/nn/layers"
	"camviz/tensor"
)

// CAM is the activation-only mapper. It requires a model ending in global
// average pooling followed by one linear layer: the class row of that
// layer's weight matrix is the per-channel weighting, so no backward pass is
// needed.
type CAM struct {
	model *nn.Sequential
	cap   *nn.Capture
	fc    *layers.Linear
}

// NewCAM attaches to the named convolutional layer and verifies the model's
// tail matches the CAM precondition. It fails at construction, not inside
// the numeric pipeline, when the architecture does not fit.
func NewCAM(model *nn.Sequential, layerName string) (*CAM, error) {
	fc, err := finalLinear(model)
	if err != nil {
		return nil, fmt.Errorf("cam: %w", err)
	}
	cap, err := model.Observe(layerName)
	if err != nil {
		return nil, fmt.Errorf("cam: %w", err)
	}
	return &CAM{model: model, cap: cap, fc: fc}, nil
}

// finalLinear walks the model tail: the last layer must be Linear, preceded
// (allowing an intervening Flatten) by GlobalAvgPool.
func finalLinear(model *nn.Sequential) (*layers.Linear, error) {
	i := model.Len() - 1
	if i < 0 {
		return nil, fmt.Errorf("model is empty")
	}
	fc, ok := model.ModuleAt(i).(*layers.Linear)
	if !ok {
		return nil, fmt.Errorf("model must end in a linear layer, got %T", model.ModuleAt(i))
	}
	i--
	if i >= 0 {
		if _, ok := model.ModuleAt(i).(*layers.Flatten); ok {
			i--
		}
	}
	if i < 0 {
		return nil, fmt.Errorf("model must pool globally before the linear head")
	}
	if _, ok := model.ModuleAt(i).(*layers.GlobalAvgPool); !ok {
		return nil, fmt.Errorf("model must pool globally before the linear head, got %T", model.ModuleAt(i))
	}
	return fc, nil
}

// ComputeMap runs one forward pass and weights the captured activation
// channels with the target class's row of the linear head.
func (c *CAM) ComputeMap(input *tensor.Tensor, classIndex int) (*Result, error) {
	scores, err := c.model.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("cam: forward: %w", err)
	}
	probs := nn.Softmax(scores)
	if classIndex < 0 {
		classIndex = nn.ArgMax(scores)
	}
	inDim, outDim := c.fc.Dims()
	if classIndex >= outDim {
		return nil, fmt.Errorf("cam: class index %d out of range (%d classes)", classIndex, outDim)
	}

	act, err := c.cap.LastActivation()
	if err != nil {
		return nil, fmt.Errorf("cam: %w", err)
	}
	C, H, W, err := featureDims(act)
	if err != nil {
		return nil, fmt.Errorf("cam: %w", err)
	}
	if C != inDim {
		return nil, fmt.Errorf("cam: linear head expects %d channels, target layer has %d", inDim, C)
	}

	// map = w_idx · A, with A the activation reshaped to C×(H·W).
	wRow := mat.NewDense(1, C, mat.Row(nil, classIndex, c.fc.W))
	A := mat.NewDense(C, H*W, act.Data)
	var m mat.Dense
	m.Mul(wRow, A)

	raw := tensor.New(H, W)
	copy(raw.Data, m.RawMatrix().Data)

	return &Result{
		Map:         normalizeMap(raw),
		ClassIndex:  classIndex,
		Probability: probs.Data[classIndex],
	}, nil
}

// Close releases the layer subscription.
func (c *CAM) Close() { c.cap.Detach() }
