package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"camviz/tensor"
)

// Softmax applies the softmax function to a score vector.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	maxLogit := logits.Data[0]
	for _, v := range logits.Data {
		if v > maxLogit {
			maxLogit = v
		}
	}
	expSum := 0.0
	exps := make([]float64, len(logits.Data))
	for i, v := range logits.Data {
		e := math.Exp(v - maxLogit)
		exps[i] = e
		expSum += e
	}
	softmax := tensor.New(len(logits.Data))
	for i, e := range exps {
		softmax.Data[i] = e / expSum
	}
	return softmax
}

// ArgMax returns the index of the largest score.
func ArgMax(scores *tensor.Tensor) int {
	return floats.MaxIdx(scores.Data)
}

// OneHot builds a length-n seed vector with a single 1 at idx, used to start
// a backward pass from one class score.
func OneHot(n, idx int) *tensor.Tensor {
	t := tensor.New(n)
	t.Data[idx] = 1
	return t
}
