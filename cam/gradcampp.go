package cam

import (
	"fmt"
	"math"

	"camviz/nn"
	"camviz/tensor"
)

// denomEps keeps the higher-order weighting away from the singularity when
// the denominator is small but nonzero.
const denomEps = 1e-7

// GradCAMPP is Grad-CAM++: the same forward/backward protocol as Grad-CAM,
// but each gradient element is weighted by a second/third-order sensitivity
// term before pooling. This drops Grad-CAM's implicit assumption that every
// spatial cell contributes equally to a channel's importance and localizes
// multiple instances of the same class better.
type GradCAMPP struct {
	model *nn.Sequential
	cap   *nn.Capture
}

// NewGradCAMPP attaches to the named layer.
func NewGradCAMPP(model *nn.Sequential, layerName string) (*GradCAMPP, error) {
	cap, err := model.Observe(layerName)
	if err != nil {
		return nil, fmt.Errorf("gradcam++: %w", err)
	}
	return &GradCAMPP{model: model, cap: cap}, nil
}

// ComputeMap runs one forward and one backward pass and applies the
// higher-order channel weighting.
func (g *GradCAMPP) ComputeMap(input *tensor.Tensor, classIndex int) (*Result, error) {
	scores, err := g.model.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("gradcam++: forward: %w", err)
	}
	probs := nn.Softmax(scores)
	if classIndex < 0 {
		classIndex = nn.ArgMax(scores)
	}
	if classIndex >= len(scores.Data) {
		return nil, fmt.Errorf("gradcam++: class index %d out of range (%d classes)", classIndex, len(scores.Data))
	}

	g.model.ZeroGrad()
	if _, err := g.model.Backward(nn.OneHot(len(scores.Data), classIndex)); err != nil {
		return nil, fmt.Errorf("gradcam++: backward: %w", err)
	}

	act, err := g.cap.LastActivation()
	if err != nil {
		return nil, fmt.Errorf("gradcam++: %w", err)
	}
	grad, err := g.cap.LastGradient()
	if err != nil {
		return nil, fmt.Errorf("gradcam++: %w", err)
	}

	weights, err := gradPPWeights(act, grad, scores.Data[classIndex])
	if err != nil {
		return nil, fmt.Errorf("gradcam++: %w", err)
	}
	raw, err := combine(act, weights)
	if err != nil {
		return nil, fmt.Errorf("gradcam++: %w", err)
	}

	return &Result{
		Map:         normalizeMap(tensor.Relu(raw)),
		ClassIndex:  classIndex,
		Probability: probs.Data[classIndex],
	}, nil
}

// Close releases the layer subscription.
func (g *GradCAMPP) Close() { g.cap.Detach() }

// gradPPWeights computes the Grad-CAM++ channel weighting:
//
//	alpha      = grad² / (2·grad² + Σ_hw act·grad³ + ε)
//	weight[c]  = Σ_hw alpha · ReLU(exp(score)·grad)
//
// The raw denominator is replaced by 1 wherever it is exactly 0 before ε is
// added, so degenerate cells contribute alpha = grad²/(1+ε) instead of
// NaN/Inf.
func gradPPWeights(act, grad *tensor.Tensor, score float64) ([]float64, error) {
	C, H, W, err := featureDims(grad)
	if err != nil {
		return nil, err
	}
	aC, aH, aW, err := featureDims(act)
	if err != nil {
		return nil, err
	}
	if aC != C || aH != H || aW != W {
		return nil, fmt.Errorf("activation %v and gradient %v disagree", act.Shape, grad.Shape)
	}

	expScore := math.Exp(score)
	weights := make([]float64, C)
	for c := 0; c < C; c++ {
		base := c * H * W

		// Per-channel Σ_hw act·grad³, broadcast back over the channel.
		sumAG3 := 0.0
		for i := 0; i < H*W; i++ {
			gv := grad.Data[base+i]
			sumAG3 += act.Data[base+i] * gv * gv * gv
		}

		w := 0.0
		for i := 0; i < H*W; i++ {
			gv := grad.Data[base+i]
			g2 := gv * gv
			denom := 2*g2 + sumAG3
			if denom == 0 {
				denom = 1
			}
			alpha := g2 / (denom + denomEps)
			reluGrad := expScore * gv
			if reluGrad < 0 {
				reluGrad = 0
			}
			w += alpha * reluGrad
		}
		weights[c] = w
	}
	return weights, nil
}
