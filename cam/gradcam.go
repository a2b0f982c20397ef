package cam

import (
	"fmt"

	"camviz/nn"
	"camviz/tensor"
)

// GradCAM weights the captured activation channels with the global average
// of the gradient of one class score, captured at the target layer during a
// backward pass. It only requires a differentiable path from the input
// through the target layer to the scores.
type GradCAM struct {
	model *nn.Sequential
	cap   *nn.Capture
}

// NewGradCAM attaches to the named layer.
func NewGradCAM(model *nn.Sequential, layerName string) (*GradCAM, error) {
	cap, err := model.Observe(layerName)
	if err != nil {
		return nil, fmt.Errorf("gradcam: %w", err)
	}
	return &GradCAM{model: model, cap: cap}, nil
}

// ComputeMap runs one forward and one backward pass. Accumulated gradients
// are cleared before seeding the backward pass; skipping that would mix this
// call's gradients with the previous one's.
func (g *GradCAM) ComputeMap(input *tensor.Tensor, classIndex int) (*Result, error) {
	scores, err := g.model.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("gradcam: forward: %w", err)
	}
	probs := nn.Softmax(scores)
	if classIndex < 0 {
		classIndex = nn.ArgMax(scores)
	}
	if classIndex >= len(scores.Data) {
		return nil, fmt.Errorf("gradcam: class index %d out of range (%d classes)", classIndex, len(scores.Data))
	}

	g.model.ZeroGrad()
	if _, err := g.model.Backward(nn.OneHot(len(scores.Data), classIndex)); err != nil {
		return nil, fmt.Errorf("gradcam: backward: %w", err)
	}

	act, err := g.cap.LastActivation()
	if err != nil {
		return nil, fmt.Errorf("gradcam: %w", err)
	}
	grad, err := g.cap.LastGradient()
	if err != nil {
		return nil, fmt.Errorf("gradcam: %w", err)
	}

	weights, err := gradWeights(grad)
	if err != nil {
		return nil, fmt.Errorf("gradcam: %w", err)
	}
	raw, err := combine(act, weights)
	if err != nil {
		return nil, fmt.Errorf("gradcam: %w", err)
	}

	return &Result{
		Map:         normalizeMap(tensor.Relu(raw)),
		ClassIndex:  classIndex,
		Probability: probs.Data[classIndex],
	}, nil
}

// Close releases the layer subscription.
func (g *GradCAM) Close() { g.cap.Detach() }

// gradWeights computes alpha[c] = mean over (h,w) of grad[c,h,w]: global
// average pooling of the captured gradient.
func gradWeights(grad *tensor.Tensor) ([]float64, error) {
	C, H, W, err := featureDims(grad)
	if err != nil {
		return nil, err
	}
	weights := make([]float64, C)
	area := float64(H * W)
	for c := 0; c < C; c++ {
		sum := 0.0
		for i := 0; i < H*W; i++ {
			sum += grad.Data[c*H*W+i]
		}
		weights[c] = sum / area
	}
	return weights, nil
}
