// Package render turns a normalized activation map into a color overlay on
// the source image.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"camviz/tensor"
)

// UpsampleBilinear resizes a single-channel [H,W] map to [outH,outW] with
// corner-anchored bilinear interpolation.
func UpsampleBilinear(m *tensor.Tensor, outH, outW int) (*tensor.Tensor, error) {
	if len(m.Shape) != 2 {
		return nil, fmt.Errorf("render: map must be 2D, got %v", m.Shape)
	}
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("render: invalid target size %dx%d", outH, outW)
	}
	inH, inW := m.Shape[0], m.Shape[1]

	out := tensor.New(outH, outW)
	scaleY := 0.0
	if outH > 1 {
		scaleY = float64(inH-1) / float64(outH-1)
	}
	scaleX := 0.0
	if outW > 1 {
		scaleX = float64(inW-1) / float64(outW-1)
	}
	for y := 0; y < outH; y++ {
		sy := float64(y) * scaleY
		y0 := int(sy)
		y1 := y0 + 1
		if y1 >= inH {
			y1 = inH - 1
		}
		fy := sy - float64(y0)
		for x := 0; x < outW; x++ {
			sx := float64(x) * scaleX
			x0 := int(sx)
			x1 := x0 + 1
			if x1 >= inW {
				x1 = inW - 1
			}
			fx := sx - float64(x0)

			top := m.Data[y0*inW+x0]*(1-fx) + m.Data[y0*inW+x1]*fx
			bot := m.Data[y1*inW+x0]*(1-fx) + m.Data[y1*inW+x1]*fx
			out.Data[y*outW+x] = top*(1-fy) + bot*fy
		}
	}
	return out, nil
}

// Jet maps a value in [0,1] to the jet color ramp (blue → cyan → yellow →
// red). Values outside [0,1] are clamped.
func Jet(v float64) (r, g, b float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	r = clamp01(1.5 - 4*abs(v-0.75))
	g = clamp01(1.5 - 4*abs(v-0.5))
	b = clamp01(1.5 - 4*abs(v-0.25))
	return r, g, b
}

// Overlay blends the jet-colored map additively onto the image and rescales
// the result so its maximum channel value is 1. The map is upsampled to the
// image resolution first. Image shape: [3,H,W] with values in [0,1]
// (de-normalized).
func Overlay(m *tensor.Tensor, img *tensor.Tensor) (*tensor.Tensor, error) {
	if len(img.Shape) != 3 || img.Shape[0] != 3 {
		return nil, fmt.Errorf("render: image must be [3,H,W], got %v", img.Shape)
	}
	H, W := img.Shape[1], img.Shape[2]
	heat, err := UpsampleBilinear(m, H, W)
	if err != nil {
		return nil, err
	}

	out := tensor.New(3, H, W)
	maxV := 0.0
	for i := 0; i < H*W; i++ {
		r, g, b := Jet(heat.Data[i])
		out.Data[i] = img.Data[i] + r
		out.Data[H*W+i] = img.Data[H*W+i] + g
		out.Data[2*H*W+i] = img.Data[2*H*W+i] + b
	}
	for _, v := range out.Data {
		if v > maxV {
			maxV = v
		}
	}
	if maxV > 0 {
		inv := 1.0 / maxV
		for i := range out.Data {
			out.Data[i] *= inv
		}
	}
	return out, nil
}

// ToImage converts a [3,H,W] tensor with values in [0,1] to an RGBA image.
func ToImage(t *tensor.Tensor) (*image.RGBA, error) {
	if len(t.Shape) != 3 || t.Shape[0] != 3 {
		return nil, fmt.Errorf("render: tensor must be [3,H,W], got %v", t.Shape)
	}
	H, W := t.Shape[1], t.Shape[2]
	img := image.NewRGBA(image.Rect(0, 0, W, H))
	for y := 0; y < H; y++ {
		for x := 0; x < W; x++ {
			i := y*W + x
			img.SetRGBA(x, y, color.RGBA{
				R: byteOf(t.Data[i]),
				G: byteOf(t.Data[H*W+i]),
				B: byteOf(t.Data[2*H*W+i]),
				A: 255,
			})
		}
	}
	return img, nil
}

// SavePNG writes the image to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("render: encode %s: %w", path, err)
	}
	return nil
}

func byteOf(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
