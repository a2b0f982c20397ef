package nn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"camviz/nn/layers"
	"camviz/tensor"
)

// gapModel builds conv("features") → gap → fc with fixed weights.
func gapModel() *Sequential {
	conv := layers.NewConv2D(1, 2, 1, 1)
	conv.W.Data[0] = 1
	conv.W.Data[1] = 2
	fc := layers.NewLinear(2, 2)
	fc.W.Set(0, 0, 1)
	fc.W.Set(0, 1, -1)
	fc.W.Set(1, 0, 0.5)
	fc.W.Set(1, 1, 0.5)
	return NewSequential().
		Add("features", conv).
		Add("gap", layers.NewGlobalAvgPool()).
		Add("fc", fc)
}

func TestSequential_Forward(t *testing.T) {
	model := gapModel()
	x := &tensor.Tensor{Data: []float64{1, 3}, Shape: []int{1, 1, 2}}
	scores, err := model.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{2}, scores.Shape)
	// conv: ch0 = x, ch1 = 2x; gap: [2, 4]; fc: [2-4, 1+2].
	require.InDelta(t, -2.0, scores.Data[0], 1e-12)
	require.InDelta(t, 3.0, scores.Data[1], 1e-12)
}

func TestSequential_LayerLookup(t *testing.T) {
	model := gapModel()
	_, err := model.Layer("features")
	require.NoError(t, err)
	_, err = model.Layer("missing")
	require.Error(t, err)
}

func TestSequential_ObserveUnknownLayer(t *testing.T) {
	model := gapModel()
	_, err := model.Observe("missing")
	require.Error(t, err)
}

func TestSequential_BackwardSeed(t *testing.T) {
	model := gapModel()
	x := &tensor.Tensor{Data: []float64{1, 3}, Shape: []int{1, 1, 2}}
	_, err := model.Forward(x)
	require.NoError(t, err)

	model.ZeroGrad()
	gin, err := model.Backward(OneHot(2, 0))
	require.NoError(t, err)
	require.Equal(t, x.Shape, gin.Shape)
	// d score0 / d x = (1·w0 + (-1)·w1)/2 per cell = (1-2)/2.
	require.InDelta(t, -0.5, gin.Data[0], 1e-12)
	require.InDelta(t, -0.5, gin.Data[1], 1e-12)
}

func TestSoftmaxArgMax(t *testing.T) {
	scores := tensor.NewWithData([]float64{1, 3, 2})
	probs := Softmax(scores)
	sum := 0.0
	for _, p := range probs.Data {
		require.Greater(t, p, 0.0)
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-12)
	require.Equal(t, 1, ArgMax(scores))
	require.Greater(t, probs.Data[1], probs.Data[2])
}

func TestOneHot(t *testing.T) {
	seed := OneHot(4, 2)
	require.Equal(t, []float64{0, 0, 1, 0}, seed.Data)
}
