package cam

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"camviz/nn"
	"camviz/tensor"
)

// Defaults for the smoothing loop.
const (
	DefaultSamples      = 25
	DefaultSpreadFactor = 0.15
)

// SmoothGradCAMPP composes SmoothGrad's Monte-Carlo noise averaging with
// Grad-CAM++: it runs the full Grad-CAM++ protocol on several noisy copies
// of the input and averages the maps, trading Samples× compute for reduced
// sensitivity to gradient noise and saturation.
type SmoothGradCAMPP struct {
	inner *GradCAMPP

	// Samples is the number of noisy evaluations (default 25).
	Samples int
	// SpreadFactor sets the noise level: stdev = SpreadFactor/(max-min)
	// of the input. A constant input gets no noise.
	SpreadFactor float64

	src *rand.Rand
}

// NewSmoothGradCAMPP attaches to the named layer. The noise source is
// explicitly seeded so sampling is reproducible.
func NewSmoothGradCAMPP(model *nn.Sequential, layerName string, samples int, spread float64, seed uint64) (*SmoothGradCAMPP, error) {
	inner, err := NewGradCAMPP(model, layerName)
	if err != nil {
		return nil, fmt.Errorf("smooth: %w", err)
	}
	if samples <= 0 {
		samples = DefaultSamples
	}
	if spread < 0 {
		spread = DefaultSpreadFactor
	}
	return &SmoothGradCAMPP{
		inner:        inner,
		Samples:      samples,
		SpreadFactor: spread,
		src:          rand.New(rand.NewSource(seed)),
	}, nil
}

// ComputeMap averages Samples Grad-CAM++ maps computed on noisy inputs.
// When classIndex is not fixed by the caller, the reported class is the most
// frequent per-sample prediction (ties go to the smallest index) and the
// probability is the mean over samples.
func (s *SmoothGradCAMPP) ComputeMap(input *tensor.Tensor, classIndex int) (*Result, error) {
	min, max := input.MinMax()
	stdev := 0.0
	if max > min {
		stdev = s.SpreadFactor / (max - min)
	}
	noise := distuv.Normal{Mu: 0, Sigma: stdev, Src: s.src}

	var accum *tensor.Tensor
	counts := make(map[int]int)
	probSum := 0.0

	for i := 0; i < s.Samples; i++ {
		sample := input
		if stdev > 0 {
			sample = input.Clone()
			for j := range sample.Data {
				sample.Data[j] += noise.Rand()
			}
		}

		res, err := s.inner.ComputeMap(sample, classIndex)
		if err != nil {
			return nil, fmt.Errorf("smooth: sample %d: %w", i, err)
		}

		if accum == nil {
			accum = res.Map
		} else if err := tensor.AddInPlace(accum, res.Map); err != nil {
			return nil, fmt.Errorf("smooth: sample %d: %w", i, err)
		}
		counts[res.ClassIndex]++
		probSum += res.Probability
	}

	idx := classIndex
	if idx < 0 {
		idx = majorityClass(counts)
	}
	return &Result{
		Map:         tensor.Scale(1/float64(s.Samples), accum),
		ClassIndex:  idx,
		Probability: probSum / float64(s.Samples),
	}, nil
}

// Close releases the layer subscription.
func (s *SmoothGradCAMPP) Close() { s.inner.Close() }

// majorityClass returns the most frequent class; ties break to the smallest
// index so the vote is deterministic.
func majorityClass(counts map[int]int) int {
	best, bestCount := -1, -1
	for idx, n := range counts {
		if n > bestCount || (n == bestCount && idx < best) {
			best, bestCount = idx, n
		}
	}
	return best
}
