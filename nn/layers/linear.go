package layers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"camviz/tensor"
)

// Linear is a fully-connected layer. Weights are held as a gonum dense
// matrix (outDim×inDim) so callers can read class rows directly.
type Linear struct {
	inDim, outDim int

	W *mat.Dense    // [outDim, inDim]
	B *mat.VecDense // [outDim]

	// Gradient storage; accumulates across backward passes until ZeroGrad.
	gradW *mat.Dense
	gradB *mat.VecDense

	lastInput *tensor.Tensor
}

// NewLinear(inDim→outDim) sets up W and B at zero.
func NewLinear(inDim, outDim int) *Linear {
	return &Linear{
		inDim:  inDim,
		outDim: outDim,
		W:      mat.NewDense(outDim, inDim, nil),
		B:      mat.NewVecDense(outDim, nil),
		gradW:  mat.NewDense(outDim, inDim, nil),
		gradB:  mat.NewVecDense(outDim, nil),
	}
}

// Dims returns (inDim, outDim).
func (l *Linear) Dims() (in, out int) { return l.inDim, l.outDim }

// Forward computes y = W·x + B. Input must be a flat vector of inDim
// elements (any rank, flattened).
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Data) != l.inDim {
		return nil, fmt.Errorf("linear: expected %d inputs, got %d (shape %v)", l.inDim, len(input.Data), input.Shape)
	}
	l.lastInput = input

	x := mat.NewVecDense(l.inDim, input.Data)
	var y mat.VecDense
	y.MulVec(l.W, x)
	y.AddVec(&y, l.B)

	out := tensor.New(l.outDim)
	copy(out.Data, y.RawVector().Data)
	return out, nil
}

// Backward accumulates gradW = g·xᵀ and gradB = g, and returns Wᵀ·g.
func (l *Linear) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.lastInput == nil {
		return nil, fmt.Errorf("linear: no cached input for backward pass")
	}
	if len(gradOut.Data) != l.outDim {
		return nil, fmt.Errorf("linear: expected %d output gradients, got %d", l.outDim, len(gradOut.Data))
	}

	g := mat.NewVecDense(l.outDim, gradOut.Data)
	x := mat.NewVecDense(l.inDim, l.lastInput.Data)

	var outer mat.Dense
	outer.Outer(1, g, x)
	l.gradW.Add(l.gradW, &outer)
	l.gradB.AddVec(l.gradB, g)

	var gin mat.VecDense
	gin.MulVec(l.W.T(), g)

	inputGrad := tensor.New(l.lastInput.Shape...)
	copy(inputGrad.Data, gin.RawVector().Data)
	return inputGrad, nil
}

// ZeroGrad clears the accumulated weight and bias gradients.
func (l *Linear) ZeroGrad() {
	l.gradW.Zero()
	l.gradB.Zero()
}

// GradW exposes the accumulated weight gradient.
func (l *Linear) GradW() *mat.Dense { return l.gradW }

// GradB exposes the accumulated bias gradient.
func (l *Linear) GradB() *mat.VecDense { return l.gradB }

// Tag identifies the layer configuration.
func (l *Linear) Tag() string {
	return fmt.Sprintf("Linear_%d_%d", l.inDim, l.outDim)
}
