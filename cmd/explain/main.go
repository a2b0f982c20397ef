// camviz-explain: render a class activation map for one image.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"camviz/cam"
	"camviz/imaging"
	"camviz/nn"
	"camviz/nn/layers"
	"camviz/render"
	"camviz/tensor"
	"camviz/utils"
)

var (
	configFile = flag.String("config", "", "YAML config file")
	weights    = flag.String("weights", "", "Model weights JSON file (empty: random demo model)")
	imageFile  = flag.String("image", "", "Input image (empty: random demo input)")
	layerName  = flag.String("layer", "", "Target layer name")
	algorithm  = flag.String("algorithm", "", "cam | gradcam | gradcam++ | smooth-gradcam++")
	classIdx   = flag.Int("class", -1, "Class index to explain (-1: model's top-1)")
	samples    = flag.Int("samples", 0, "Smoothing samples")
	spread     = flag.Float64("spread", -1, "Smoothing noise spread factor")
	seed       = flag.Uint64("seed", 1, "Noise seed")
	inputSize  = flag.Int("size", 0, "Model input resolution")
	output     = flag.String("out", "", "Overlay PNG path")
	topK       = flag.Int("topk", 3, "Top predictions to show")
	verbose    = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg, err := resolveConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	log.Printf("run=%s algorithm=%s layer=%s class=%d", runID, cfg.Algorithm, cfg.Layer, cfg.ClassIndex)

	var stats utils.ExplainStats
	startTotal := time.Now()

	// Model
	start := time.Now()
	model, err := buildModel(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building model: %v\n", err)
		os.Exit(1)
	}
	stats.ModelInitTime = time.Since(start)

	// Input
	start = time.Now()
	pixels, input, err := loadInput(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading input: %v\n", err)
		os.Exit(1)
	}
	stats.ImageLoadTime = time.Since(start)

	// Mapper
	mapper, err := buildMapper(model, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer mapper.Close()

	start = time.Now()
	res, err := mapper.ComputeMap(input, cfg.ClassIndex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing map: %v\n", err)
		os.Exit(1)
	}
	stats.MapTime = time.Since(start)

	log.Printf("run=%s class=%d probability=%.4f map=%dx%d",
		runID, res.ClassIndex, res.Probability, res.Map.Shape[0], res.Map.Shape[1])

	// Overlay
	start = time.Now()
	overlay, err := render.Overlay(res.Map, pixels)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering: %v\n", err)
		os.Exit(1)
	}
	img, err := render.ToImage(overlay)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering: %v\n", err)
		os.Exit(1)
	}
	if err := render.SavePNG(cfg.Output, img); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving overlay: %v\n", err)
		os.Exit(1)
	}
	stats.RenderTime = time.Since(start)
	stats.TotalTime = time.Since(startTotal)

	log.Printf("run=%s saved=%s", runID, cfg.Output)

	scores, err := model.Forward(input)
	if err == nil {
		showResults(scores, *topK)
	}

	mapSamples := 1
	if cfg.Algorithm == utils.AlgoSmoothCAMPP {
		mapSamples = cfg.Samples
	}
	utils.PrintExplainStats(&stats, mapSamples)
}

// resolveConfig layers explicit flags over the config file over defaults.
func resolveConfig() (utils.Config, error) {
	cfg := utils.DefaultConfig()
	if *configFile != "" {
		loaded, err := utils.LoadConfig(*configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "weights":
			cfg.Weights = *weights
		case "image":
			cfg.Image = *imageFile
		case "layer":
			cfg.Layer = *layerName
		case "algorithm":
			cfg.Algorithm = *algorithm
		case "class":
			cfg.ClassIndex = *classIdx
		case "samples":
			cfg.Samples = *samples
		case "spread":
			cfg.SpreadFactor = *spread
		case "seed":
			cfg.Seed = *seed
		case "size":
			cfg.InputSize = *inputSize
		case "out":
			cfg.Output = *output
		}
	})

	if cfg.Weights == "" && cfg.InputSize == utils.DefaultConfig().InputSize {
		// The random demo model is tiny; keep its input small too.
		cfg.InputSize = 32
	}
	if err := utils.ValidateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func buildModel(cfg utils.Config) (*nn.Sequential, error) {
	if cfg.Weights != "" {
		w, err := utils.LoadWeights(cfg.Weights)
		if err != nil {
			return nil, err
		}
		model, err := utils.BuildModel(w)
		if err != nil {
			return nil, err
		}
		log.Printf("loaded %d layers from %s", model.Len(), cfg.Weights)
		return model, nil
	}
	return demoModel(int64(cfg.Seed)), nil
}

// demoModel builds a small random CNN so the tool runs without a weights
// file. The target layer is named "features".
func demoModel(seed int64) *nn.Sequential {
	rng := rand.New(rand.NewSource(seed))

	conv1 := layers.NewConv2D(3, 8, 5, 5)
	randomize(rng, conv1.W.Data)
	conv2 := layers.NewConv2D(8, 16, 3, 3)
	randomize(rng, conv2.W.Data)
	fc := layers.NewLinear(16, 10)
	for r := 0; r < 10; r++ {
		for c := 0; c < 16; c++ {
			fc.W.Set(r, c, rng.Float64()*0.2-0.1)
		}
	}

	return nn.NewSequential().
		Add("conv1", conv1).
		Add("relu1", layers.NewReLU()).
		Add("pool1", layers.NewAvgPool2D(2)).
		Add("features", conv2).
		Add("relu2", layers.NewReLU()).
		Add("gap", layers.NewGlobalAvgPool()).
		Add("fc", fc)
}

func randomize(rng *rand.Rand, data []float64) {
	for i := range data {
		data[i] = rng.Float64()*0.2 - 0.1
	}
}

// loadInput returns the de-normalized pixels (for the overlay) and the
// normalized model input.
func loadInput(cfg utils.Config) (pixels, input *tensor.Tensor, err error) {
	if cfg.Image != "" {
		img, err := imaging.Load(cfg.Image)
		if err != nil {
			return nil, nil, err
		}
		pixels, err = imaging.ToTensor(img, cfg.InputSize, cfg.InputSize)
		if err != nil {
			return nil, nil, err
		}
	} else {
		rng := rand.New(rand.NewSource(int64(cfg.Seed)))
		pixels = tensor.New(3, cfg.InputSize, cfg.InputSize)
		for i := range pixels.Data {
			pixels.Data[i] = rng.Float64()
		}
	}
	input, err = imaging.Normalize(pixels)
	if err != nil {
		return nil, nil, err
	}
	return pixels, input, nil
}

func buildMapper(model *nn.Sequential, cfg utils.Config) (cam.Mapper, error) {
	switch cfg.Algorithm {
	case utils.AlgoCAM:
		return cam.NewCAM(model, cfg.Layer)
	case utils.AlgoGradCAM:
		return cam.NewGradCAM(model, cfg.Layer)
	case utils.AlgoGradCAMPP:
		return cam.NewGradCAMPP(model, cfg.Layer)
	case utils.AlgoSmoothCAMPP:
		return cam.NewSmoothGradCAMPP(model, cfg.Layer, cfg.Samples, cfg.SpreadFactor, cfg.Seed)
	default:
		return nil, fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}
}

func showResults(scores *tensor.Tensor, k int) {
	probs := nn.Softmax(scores)
	indices := topKIndices(scores.Data, k)

	fmt.Printf("\nTop %d predictions:\n", k)
	for i, idx := range indices {
		fmt.Printf("  %d. Class %d: %.4f\n", i+1, idx, probs.Data[idx])
	}
}

func topKIndices(vals []float64, k int) []int {
	if k > len(vals) {
		k = len(vals)
	}
	indices := make([]int, k)
	used := make(map[int]bool)
	for i := 0; i < k; i++ {
		maxIdx, maxVal := -1, math.Inf(-1)
		for j, v := range vals {
			if !used[j] && v > maxVal {
				maxVal, maxIdx = v, j
			}
		}
		indices[i] = maxIdx
		used[maxIdx] = true
	}
	return indices
}
