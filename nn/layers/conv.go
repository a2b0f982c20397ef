package layers

import (
	"fmt"

	"camviz/tensor"
)

// Conv2D is a 2D convolutional layer (valid padding, stride 1).
type Conv2D struct {
	inChan, outChan int // number of input/output channels
	kh, kw          int // kernel height and width

	W *tensor.Tensor // weights: [outChan, inChan, kh, kw]
	B *tensor.Tensor // bias: [outChan]

	// Gradient storage; accumulates across backward passes until ZeroGrad.
	gradW *tensor.Tensor
	gradB *tensor.Tensor

	// Cached input for backward pass
	lastInput *tensor.Tensor
}

// NewConv2D creates a new Conv2D layer.
func NewConv2D(inChan, outChan, kh, kw int) *Conv2D {
	return &Conv2D{
		inChan:  inChan,
		outChan: outChan,
		kh:      kh,
		kw:      kw,
		W:       tensor.New(outChan, inChan, kh, kw),
		B:       tensor.New(outChan),
		gradW:   tensor.New(outChan, inChan, kh, kw),
		gradB:   tensor.New(outChan),
	}
}

// OutputShape returns the output dimensions for given input dimensions.
func (c *Conv2D) OutputShape(inH, inW int) (outH, outW int) {
	return inH - c.kh + 1, inW - c.kw + 1
}

// Forward performs the convolution. Input shape is [batch, inChan, H, W] or
// [inChan, H, W]; the output keeps the input's rank.
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	var batchSize, height, width int
	switch len(input.Shape) {
	case 4:
		batchSize, height, width = input.Shape[0], input.Shape[2], input.Shape[3]
	case 3:
		batchSize, height, width = 1, input.Shape[1], input.Shape[2]
	default:
		return nil, fmt.Errorf("conv2d: input must be 3D or 4D, got %v", input.Shape)
	}
	if chans := input.Shape[len(input.Shape)-3]; chans != c.inChan {
		return nil, fmt.Errorf("conv2d: expected %d input channels, got %d", c.inChan, chans)
	}

	outHeight := height - c.kh + 1
	outWidth := width - c.kw + 1

	outShape := []int{c.outChan, outHeight, outWidth}
	if len(input.Shape) == 4 {
		outShape = []int{batchSize, c.outChan, outHeight, outWidth}
	}
	output := tensor.New(outShape...)

	// Cache input for backward pass
	c.lastInput = input

	for b := 0; b < batchSize; b++ {
		for oc := 0; oc < c.outChan; oc++ {
			for y := 0; y < outHeight; y++ {
				for x := 0; x < outWidth; x++ {
					sum := c.B.Data[oc] // Start with bias

					// Convolve with kernel
					for ic := 0; ic < c.inChan; ic++ {
						for dy := 0; dy < c.kh; dy++ {
							for dx := 0; dx < c.kw; dx++ {
								iy := y + dy
								ix := x + dx
								wIdx := oc*c.inChan*c.kh*c.kw + ic*c.kh*c.kw + dy*c.kw + dx
								inIdx := ((b*c.inChan+ic)*height+iy)*width + ix
								sum += input.Data[inIdx] * c.W.Data[wIdx]
							}
						}
					}

					outIdx := ((b*c.outChan+oc)*outHeight+y)*outWidth + x
					output.Data[outIdx] = sum
				}
			}
		}
	}

	return output, nil
}

// Backward accumulates weight/bias gradients and returns the input gradient.
func (c *Conv2D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if c.lastInput == nil {
		return nil, fmt.Errorf("conv2d: no cached input for backward pass")
	}

	var batchSize, outHeight, outWidth int
	switch len(gradOut.Shape) {
	case 4:
		batchSize, outHeight, outWidth = gradOut.Shape[0], gradOut.Shape[2], gradOut.Shape[3]
	case 3:
		batchSize, outHeight, outWidth = 1, gradOut.Shape[1], gradOut.Shape[2]
	default:
		return nil, fmt.Errorf("conv2d: gradOut must be 3D or 4D, got %v", gradOut.Shape)
	}

	inShape := c.lastInput.Shape
	inHeight := inShape[len(inShape)-2]
	inWidth := inShape[len(inShape)-1]

	// Bias gradients: sum over all spatial positions
	for oc := 0; oc < c.outChan; oc++ {
		for b := 0; b < batchSize; b++ {
			for y := 0; y < outHeight; y++ {
				for x := 0; x < outWidth; x++ {
					gradIdx := ((b*c.outChan+oc)*outHeight+y)*outWidth + x
					c.gradB.Data[oc] += gradOut.Data[gradIdx]
				}
			}
		}
	}

	// Weight gradients
	for oc := 0; oc < c.outChan; oc++ {
		for ic := 0; ic < c.inChan; ic++ {
			for dy := 0; dy < c.kh; dy++ {
				for dx := 0; dx < c.kw; dx++ {
					wGradIdx := oc*c.inChan*c.kh*c.kw + ic*c.kh*c.kw + dy*c.kw + dx

					for b := 0; b < batchSize; b++ {
						for y := 0; y < outHeight; y++ {
							for x := 0; x < outWidth; x++ {
								iy := y + dy
								ix := x + dx
								inIdx := ((b*c.inChan+ic)*inHeight+iy)*inWidth + ix
								gradIdx := ((b*c.outChan+oc)*outHeight+y)*outWidth + x
								c.gradW.Data[wGradIdx] += c.lastInput.Data[inIdx] * gradOut.Data[gradIdx]
							}
						}
					}
				}
			}
		}
	}

	// Input gradients (transposed convolution)
	inputGrad := tensor.New(c.lastInput.Shape...)

	for b := 0; b < batchSize; b++ {
		for ic := 0; ic < c.inChan; ic++ {
			for y := 0; y < inHeight; y++ {
				for x := 0; x < inWidth; x++ {
					inGradIdx := ((b*c.inChan+ic)*inHeight+y)*inWidth + x

					sum := 0.0
					for oc := 0; oc < c.outChan; oc++ {
						for dy := 0; dy < c.kh; dy++ {
							for dx := 0; dx < c.kw; dx++ {
								oy := y - dy
								ox := x - dx
								if oy >= 0 && oy < outHeight && ox >= 0 && ox < outWidth {
									wIdx := oc*c.inChan*c.kh*c.kw + ic*c.kh*c.kw + dy*c.kw + dx
									gradIdx := ((b*c.outChan+oc)*outHeight+oy)*outWidth + ox
									sum += c.W.Data[wIdx] * gradOut.Data[gradIdx]
								}
							}
						}
					}
					inputGrad.Data[inGradIdx] = sum
				}
			}
		}
	}

	return inputGrad, nil
}

// ZeroGrad clears the accumulated weight and bias gradients.
func (c *Conv2D) ZeroGrad() {
	c.gradW.Zero()
	c.gradB.Zero()
}

// GradW exposes the accumulated weight gradient.
func (c *Conv2D) GradW() *tensor.Tensor { return c.gradW }

// GradB exposes the accumulated bias gradient.
func (c *Conv2D) GradB() *tensor.Tensor { return c.gradB }

// Tag identifies the layer configuration.
func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%d_%d_%d_%d", c.inChan, c.outChan, c.kh, c.kw)
}
