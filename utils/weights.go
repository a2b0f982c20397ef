package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"camviz/nn"
	"camviz/nn/layers"
	"camviz/tensor"
)

// WeightData represents serializable weight data for a layer.
type WeightData struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// LayerSpec describes one layer of a serialized model, in order.
type LayerSpec struct {
	Name   string      `json:"name"`
	Type   string      `json:"type"` // conv | relu | avgpool | gap | flatten | linear
	Pool   int         `json:"pool,omitempty"`
	Weight *WeightData `json:"weight,omitempty"`
	Bias   *WeightData `json:"bias,omitempty"`
}

// ModelWeights represents a whole serialized model.
type ModelWeights struct {
	Version string      `json:"version"`
	Layers  []LayerSpec `json:"layers"`
}

// SaveWeights saves model weights to a JSON file.
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadWeights loads model weights from a JSON file.
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights file: %w", err)
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data.
func TensorToWeightData(t *tensor.Tensor) *WeightData {
	return &WeightData{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

// WeightDataToTensor converts weight data back to a tensor.
func WeightDataToTensor(wd *WeightData) *tensor.Tensor {
	t := tensor.New(wd.Shape...)
	copy(t.Data, wd.Data)
	return t
}

// BuildModel constructs a Sequential model from serialized weights, layer by
// layer in file order.
func BuildModel(weights *ModelWeights) (*nn.Sequential, error) {
	model := nn.NewSequential()
	for i, spec := range weights.Layers {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("layer%d", i)
		}
		switch spec.Type {
		case "conv":
			if spec.Weight == nil || len(spec.Weight.Shape) != 4 {
				return nil, fmt.Errorf("layer %q: conv needs a 4D weight", name)
			}
			sh := spec.Weight.Shape
			conv := layers.NewConv2D(sh[1], sh[0], sh[2], sh[3])
			copy(conv.W.Data, spec.Weight.Data)
			if spec.Bias != nil {
				copy(conv.B.Data, spec.Bias.Data)
			}
			model.Add(name, conv)
		case "linear":
			if spec.Weight == nil || len(spec.Weight.Shape) != 2 {
				return nil, fmt.Errorf("layer %q: linear needs a 2D weight", name)
			}
			out, in := spec.Weight.Shape[0], spec.Weight.Shape[1]
			lin := layers.NewLinear(in, out)
			for r := 0; r < out; r++ {
				for c := 0; c < in; c++ {
					lin.W.Set(r, c, spec.Weight.Data[r*in+c])
				}
			}
			if spec.Bias != nil {
				for r := 0; r < out && r < len(spec.Bias.Data); r++ {
					lin.B.SetVec(r, spec.Bias.Data[r])
				}
			}
			model.Add(name, lin)
		case "relu":
			model.Add(name, layers.NewReLU())
		case "avgpool":
			if spec.Pool <= 0 {
				return nil, fmt.Errorf("layer %q: avgpool needs a positive pool size", name)
			}
			model.Add(name, layers.NewAvgPool2D(spec.Pool))
		case "gap":
			model.Add(name, layers.NewGlobalAvgPool())
		case "flatten":
			model.Add(name, layers.NewFlatten())
		default:
			return nil, fmt.Errorf("layer %q: unknown type %q", name, spec.Type)
		}
	}
	if model.Len() == 0 {
		return nil, fmt.Errorf("weights file describes no layers")
	}
	return model, nil
}
