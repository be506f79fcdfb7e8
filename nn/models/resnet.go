package models

import (
	"fmt"
	"log/slog"

	"resnet_lib/nn"
	"resnet_lib/nn/layers"
	"resnet_lib/tensor"
)

// ResNetConfig configures the generic image-to-image residual network.
type ResNetConfig struct {
	InChannels   int
	OutChannels  int
	Nker         int
	LearningType nn.LearningType
	Norm         nn.Norm
	Nblk         int
	// Seed for parameter initialization; 0 uses RESNET_SEED.
	Seed uint64
}

func DefaultResNetConfig(in, out int) ResNetConfig {
	return ResNetConfig{
		InChannels:   in,
		OutChannels:  out,
		Nker:         defaultNker,
		LearningType: nn.Plain,
		Norm:         nn.NormBatch,
		Nblk:         defaultNblk,
	}
}

// ResNet is enc -> nblk residual blocks -> dec -> 1x1 projection. With the
// residual learning type the projection is added to the network input.
type ResNet struct {
	Enc *layers.CBR2D
	Res *nn.Sequential
	Dec *layers.CBR2D
	Fc  *layers.CBR2D

	cfg ResNetConfig
}

func NewResNet(cfg ResNetConfig) (*ResNet, error) {
	lt, err := learningType(cfg.LearningType)
	if err != nil {
		return nil, fmt.Errorf("ResNet: %w", err)
	}
	cfg.LearningType = lt

	m := &ResNet{cfg: cfg}
	if m.Enc, err = layers.NewCBR2D(conv3(cfg.InChannels, cfg.Nker, nn.NormNone, layers.ReLU(0))); err != nil {
		return nil, fmt.Errorf("ResNet enc: %w", err)
	}
	if m.Res, err = residualTrunk(cfg.Nker, cfg.Nblk, cfg.Norm); err != nil {
		return nil, fmt.Errorf("ResNet: %w", err)
	}
	if m.Dec, err = layers.NewCBR2D(conv3(cfg.Nker, cfg.Nker, cfg.Norm, layers.ReLU(0))); err != nil {
		return nil, fmt.Errorf("ResNet dec: %w", err)
	}
	if m.Fc, err = layers.NewCBR2D(projection(cfg.Nker, cfg.OutChannels)); err != nil {
		return nil, fmt.Errorf("ResNet fc: %w", err)
	}

	initialize(m, cfg.Seed)
	slog.Debug("built ResNet", "nblk", cfg.Nblk, "nker", cfg.Nker, "norm", cfg.Norm, "learning_type", cfg.LearningType, "params", nn.NumParams(m))
	return m, nil
}

func (m *ResNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := nn.NewSequential(m.Enc, m.Res, m.Dec, m.Fc).Forward(x)
	if err != nil {
		return nil, fmt.Errorf("ResNet: %w", err)
	}
	if m.cfg.LearningType == nn.Residual {
		if out, err = addInput(out, x); err != nil {
			return nil, fmt.Errorf("ResNet: %w", err)
		}
	}
	return out, nil
}

// Config returns the configuration the network was built from.
func (m *ResNet) Config() ResNetConfig { return m.cfg }

func (m *ResNet) Children() []nn.Module {
	return []nn.Module{m.Enc, m.Res, m.Dec, m.Fc}
}

func (m *ResNet) Params() []nn.Param {
	return namedParams([]string{"enc", "res", "dec", "fc"}, m.Children())
}

func (m *ResNet) Tag() string {
	return fmt.Sprintf("ResNet_%d_%d_nker%d_nblk%d_%s_%s", m.cfg.InChannels, m.cfg.OutChannels, m.cfg.Nker, m.cfg.Nblk, m.cfg.Norm, m.cfg.LearningType)
}
