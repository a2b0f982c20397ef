package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Algorithm names accepted by the driver.
const (
	AlgoCAM         = "cam"
	AlgoGradCAM     = "gradcam"
	AlgoGradCAMPP   = "gradcam++"
	AlgoSmoothCAMPP = "smooth-gradcam++"
)

// Config holds one explanation run's settings.
type Config struct {
	Weights      string  `yaml:"weights"`       // model weights JSON; empty = demo model
	Image        string  `yaml:"image"`         // input image; empty = demo input
	Layer        string  `yaml:"layer"`         // target layer name
	Algorithm    string  `yaml:"algorithm"`     // cam | gradcam | gradcam++ | smooth-gradcam++
	ClassIndex   int     `yaml:"class_index"`   // -1 = model's top-1
	Samples      int     `yaml:"samples"`       // smoothing samples
	SpreadFactor float64 `yaml:"spread_factor"` // smoothing noise spread
	Seed         uint64  `yaml:"seed"`          // noise seed
	InputSize    int     `yaml:"input_size"`    // model input resolution
	Output       string  `yaml:"output"`        // overlay PNG path
}

// DefaultConfig returns the settings used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Layer:        "features",
		Algorithm:    AlgoGradCAMPP,
		ClassIndex:   -1,
		Samples:      25,
		SpreadFactor: 0.15,
		InputSize:    224,
		Output:       "overlay.png",
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ValidateConfig validates an explanation run configuration.
func ValidateConfig(cfg *Config) error {
	switch cfg.Algorithm {
	case AlgoCAM, AlgoGradCAM, AlgoGradCAMPP, AlgoSmoothCAMPP:
	default:
		return fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}

	if cfg.Layer == "" {
		return fmt.Errorf("target layer must be set")
	}

	if cfg.Samples <= 0 {
		return fmt.Errorf("samples must be positive")
	}

	if cfg.SpreadFactor < 0 {
		return fmt.Errorf("spread factor must not be negative")
	}

	if cfg.InputSize <= 0 {
		return fmt.Errorf("input size must be positive")
	}

	return nil
}
