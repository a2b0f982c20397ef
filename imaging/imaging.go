// Package imaging loads and preprocesses input images for the classifier:
// decoding, resampling to the model resolution, and the fixed per-channel
// normalization the model was trained with.
package imaging

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"camviz/tensor"
)

// ImageNet channel statistics.
var (
	Mean = [3]float64{0.485, 0.456, 0.406}
	Std  = [3]float64{0.229, 0.224, 0.225}
)

// Load decodes a JPEG or PNG image from disk.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imaging: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("imaging: decode %s: %w", path, err)
	}
	return img, nil
}

// ToTensor resamples img to H×W with bilinear interpolation and returns a
// [3,H,W] tensor with channel values in [0,1].
func ToTensor(img image.Image, H, W int) (*tensor.Tensor, error) {
	if H <= 0 || W <= 0 {
		return nil, fmt.Errorf("imaging: invalid target size %dx%d", H, W)
	}
	b := img.Bounds()
	srcH, srcW := b.Dy(), b.Dx()
	if srcH == 0 || srcW == 0 {
		return nil, fmt.Errorf("imaging: empty source image")
	}

	out := tensor.New(3, H, W)
	scaleY := 0.0
	if H > 1 {
		scaleY = float64(srcH-1) / float64(H-1)
	}
	scaleX := 0.0
	if W > 1 {
		scaleX = float64(srcW-1) / float64(W-1)
	}
	for y := 0; y < H; y++ {
		sy := float64(y) * scaleY
		y0 := int(sy)
		y1 := y0 + 1
		if y1 >= srcH {
			y1 = srcH - 1
		}
		fy := sy - float64(y0)
		for x := 0; x < W; x++ {
			sx := float64(x) * scaleX
			x0 := int(sx)
			x1 := x0 + 1
			if x1 >= srcW {
				x1 = srcW - 1
			}
			fx := sx - float64(x0)

			r00, g00, b00 := rgbAt(img, b.Min.X+x0, b.Min.Y+y0)
			r01, g01, b01 := rgbAt(img, b.Min.X+x1, b.Min.Y+y0)
			r10, g10, b10 := rgbAt(img, b.Min.X+x0, b.Min.Y+y1)
			r11, g11, b11 := rgbAt(img, b.Min.X+x1, b.Min.Y+y1)

			i := y*W + x
			out.Data[i] = lerp2(r00, r01, r10, r11, fx, fy)
			out.Data[H*W+i] = lerp2(g00, g01, g10, g11, fx, fy)
			out.Data[2*H*W+i] = lerp2(b00, b01, b10, b11, fx, fy)
		}
	}
	return out, nil
}

// Normalize applies (v-mean)/std per channel and adds the batch dimension,
// returning the [1,3,H,W] model input.
func Normalize(t *tensor.Tensor) (*tensor.Tensor, error) {
	if len(t.Shape) != 3 || t.Shape[0] != 3 {
		return nil, fmt.Errorf("imaging: expected [3,H,W], got %v", t.Shape)
	}
	H, W := t.Shape[1], t.Shape[2]
	out := tensor.New(1, 3, H, W)
	for c := 0; c < 3; c++ {
		for i := 0; i < H*W; i++ {
			out.Data[c*H*W+i] = (t.Data[c*H*W+i] - Mean[c]) / Std[c]
		}
	}
	return out, nil
}

// Denormalize inverts Normalize, accepting [1,3,H,W] or [3,H,W] and
// returning [3,H,W] pixel values.
func Denormalize(t *tensor.Tensor) (*tensor.Tensor, error) {
	shape := t.Shape
	if len(shape) == 4 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 3 || shape[0] != 3 {
		return nil, fmt.Errorf("imaging: expected [3,H,W] or [1,3,H,W], got %v", t.Shape)
	}
	H, W := shape[1], shape[2]
	out := tensor.New(3, H, W)
	for c := 0; c < 3; c++ {
		for i := 0; i < H*W; i++ {
			out.Data[c*H*W+i] = t.Data[c*H*W+i]*Std[c] + Mean[c]
		}
	}
	return out, nil
}

func rgbAt(img image.Image, x, y int) (r, g, b float64) {
	cr, cg, cb, _ := img.At(x, y).RGBA()
	return float64(cr) / 65535, float64(cg) / 65535, float64(cb) / 65535
}

func lerp2(v00, v01, v10, v11, fx, fy float64) float64 {
	top := v00*(1-fx) + v01*fx
	bot := v10*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy
}
