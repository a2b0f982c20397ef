package cam

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSmoothGradCAMPP_NoNoiseMatchesInner(t *testing.T) {
	// One sample with zero spread draws no noise, so the smoothed map must
	// reproduce the plain Grad-CAM++ map exactly.
	model := gapModel()
	smooth, err := NewSmoothGradCAMPP(model, "features", 1, 0, 7)
	require.NoError(t, err)
	defer smooth.Close()
	plain, err := NewGradCAMPP(model, "features")
	require.NoError(t, err)
	defer plain.Close()

	x := positiveInput()
	got, err := smooth.ComputeMap(x, -1)
	require.NoError(t, err)
	want, err := plain.ComputeMap(x, -1)
	require.NoError(t, err)

	require.Equal(t, want.ClassIndex, got.ClassIndex)
	require.Equal(t, want.Probability, got.Probability)
	require.Equal(t, want.Map.Shape, got.Map.Shape)
	require.Equal(t, want.Map.Data, got.Map.Data)
}

func TestSmoothGradCAMPP_Reproducible(t *testing.T) {
	x := positiveInput()

	run := func() *Result {
		s, err := NewSmoothGradCAMPP(gapModel(), "features", 8, 0.15, 42)
		require.NoError(t, err)
		defer s.Close()
		res, err := s.ComputeMap(x, 0)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	require.Equal(t, a.Probability, b.Probability)
	require.Equal(t, a.Map.Data, b.Map.Data)
}

func TestSmoothGradCAMPP_MapRange(t *testing.T) {
	s, err := NewSmoothGradCAMPP(gapModel(), "features", 10, 0.15, 1)
	require.NoError(t, err)
	defer s.Close()

	res, err := s.ComputeMap(positiveInput(), -1)
	require.NoError(t, err)
	require.Equal(t, []int{3, 3}, res.Map.Shape)
	for _, v := range res.Map.Data {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
	require.GreaterOrEqual(t, res.ClassIndex, 0)
	require.Greater(t, res.Probability, 0.0)
	require.LessOrEqual(t, res.Probability, 1.0)
}

func TestSmoothGradCAMPP_Defaults(t *testing.T) {
	s, err := NewSmoothGradCAMPP(gapModel(), "features", 0, -1, 0)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, DefaultSamples, s.Samples)
	require.Equal(t, DefaultSpreadFactor, s.SpreadFactor)
}

func TestMajorityClass_TieBreak(t *testing.T) {
	require.Equal(t, 2, majorityClass(map[int]int{2: 3, 5: 3, 1: 2}))
	require.Equal(t, 4, majorityClass(map[int]int{4: 10, 0: 3}))
}
