package utils

import (
	"fmt"
	"strconv"
	"strings"

	"resnet_lib/nn"
)

// Model names accepted by ModelConfig.Model.
const (
	ModelResNet     = "resnet"
	ModelPoseResNet = "poseresnet"
	ModelSRResNet   = "srresnet"
)

// ModelConfig holds the command-line view of an architecture configuration
type ModelConfig struct {
	Model        string
	InChannels   int
	OutChannels  int
	Nker         int
	LearningType string
	Norm         string
	// Nblk is used by resnet and srresnet.
	Nblk int
	// NumLayers is used by poseresnet.
	NumLayers int
	// Seed for parameter initialization; 0 uses RESNET_SEED.
	Seed uint64
}

// DefaultModelConfig returns the published defaults for model.
func DefaultModelConfig(model string) ModelConfig {
	return ModelConfig{
		Model:        model,
		InChannels:   3,
		OutChannels:  3,
		Nker:         64,
		LearningType: string(nn.Plain),
		Norm:         string(nn.NormBatch),
		Nblk:         16,
		NumLayers:    50,
	}
}

// ParseShape parses a tensor shape such as "1 3 32 32" or "1,3,32,32".
func ParseShape(shapeStr string) ([]int, error) {
	parts := strings.FieldsFunc(shapeStr, func(r rune) bool {
		return r == ',' || r == ' ' || r == 'x'
	})
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty shape")
	}
	shape := make([]int, len(parts))
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("shape %q: %w", shapeStr, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("shape %q: dimension %d must be positive", shapeStr, i)
		}
		shape[i] = n
	}
	return shape, nil
}

// ValidateConfig validates a model configuration. Channel agreement for the
// residual learning type is left to evaluation.
func ValidateConfig(config *ModelConfig) error {
	switch config.Model {
	case ModelResNet, ModelPoseResNet, ModelSRResNet:
	default:
		return fmt.Errorf("unknown model %q (want %s, %s or %s)", config.Model, ModelResNet, ModelPoseResNet, ModelSRResNet)
	}

	if config.InChannels <= 0 || config.OutChannels <= 0 {
		return fmt.Errorf("channel counts must be positive")
	}

	if config.Nker <= 0 {
		return fmt.Errorf("nker must be positive")
	}

	if config.Nblk < 0 {
		return fmt.Errorf("nblk must not be negative")
	}

	if _, err := nn.ParseNorm(config.Norm); err != nil {
		return err
	}

	if _, err := nn.ParseLearningType(config.LearningType); err != nil {
		return err
	}

	return nil
}
