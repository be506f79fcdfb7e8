package models

import (
	"fmt"
	"log/slog"

	"resnet_lib/nn"
	"resnet_lib/nn/layers"
	"resnet_lib/tensor"
)

// SRScale is the spatial upscaling factor of SRResNet.
const SRScale = 4

// SRResNetConfig configures the 4x super-resolution network.
type SRResNetConfig struct {
	InChannels   int
	OutChannels  int
	Nker         int
	LearningType nn.LearningType
	Norm         nn.Norm
	Nblk         int
	// Seed for parameter initialization; 0 uses RESNET_SEED.
	Seed uint64
}

func DefaultSRResNetConfig(in, out int) SRResNetConfig {
	return SRResNetConfig{
		InChannels:   in,
		OutChannels:  out,
		Nker:         defaultNker,
		LearningType: nn.Plain,
		Norm:         nn.NormBatch,
		Nblk:         defaultNblk,
	}
}

// SRResNet is a 9x9 entry conv, a residual trunk closed by an internal skip,
// two conv+PixelShuffle(2,2) stages and a 9x9 projection. With the residual
// learning type the nearest-neighbour upscaled input is added to the output.
type SRResNet struct {
	Enc *layers.CBR2D
	Res *nn.Sequential
	Dec *layers.CBR2D
	PS1 *nn.Sequential
	PS2 *nn.Sequential
	Fc  *layers.CBR2D
	// Up is set for the residual learning type only.
	Up *layers.Upsample

	cfg SRResNetConfig
}

func wide9(in, out int, relu *float64) layers.BlockConfig {
	return layers.BlockConfig{InChannels: in, OutChannels: out, KernelSize: 9, Stride: 1, Padding: 4, Bias: true, Relu: relu}
}

func shuffleStage(nker int) *nn.Sequential {
	return nn.NewSequential(
		layers.NewConv2D(nker, 4*nker, 3, 1, 1, true),
		layers.NewPixelShuffle(2, 2),
		layers.NewLeakyReLU(0),
	)
}

func NewSRResNet(cfg SRResNetConfig) (*SRResNet, error) {
	lt, err := learningType(cfg.LearningType)
	if err != nil {
		return nil, fmt.Errorf("SRResNet: %w", err)
	}
	cfg.LearningType = lt

	m := &SRResNet{cfg: cfg}
	if m.Enc, err = layers.NewCBR2D(wide9(cfg.InChannels, cfg.Nker, layers.ReLU(0))); err != nil {
		return nil, fmt.Errorf("SRResNet enc: %w", err)
	}
	if m.Res, err = residualTrunk(cfg.Nker, cfg.Nblk, cfg.Norm); err != nil {
		return nil, fmt.Errorf("SRResNet: %w", err)
	}
	if m.Dec, err = layers.NewCBR2D(conv3(cfg.Nker, cfg.Nker, cfg.Norm, nil)); err != nil {
		return nil, fmt.Errorf("SRResNet dec: %w", err)
	}
	m.PS1 = shuffleStage(cfg.Nker)
	m.PS2 = shuffleStage(cfg.Nker)
	if m.Fc, err = layers.NewCBR2D(wide9(cfg.Nker, cfg.OutChannels, nil)); err != nil {
		return nil, fmt.Errorf("SRResNet fc: %w", err)
	}
	if cfg.LearningType == nn.Residual {
		m.Up = layers.NewUpsample(SRScale)
	}

	initialize(m, cfg.Seed)
	slog.Debug("built SRResNet", "nblk", cfg.Nblk, "nker", cfg.Nker, "norm", cfg.Norm, "learning_type", cfg.LearningType, "params", nn.NumParams(m))
	return m, nil
}

func (m *SRResNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	feat, err := m.Enc.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("SRResNet enc: %w", err)
	}
	out, err := m.trunk().Forward(feat)
	if err != nil {
		return nil, fmt.Errorf("SRResNet trunk: %w", err)
	}
	if out, err = nn.NewSequential(m.PS1, m.PS2, m.Fc).Forward(out); err != nil {
		return nil, fmt.Errorf("SRResNet upscale: %w", err)
	}
	if m.Up != nil {
		up, err := m.Up.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("SRResNet: %w", err)
		}
		if out, err = addInput(out, up); err != nil {
			return nil, fmt.Errorf("SRResNet: %w", err)
		}
	}
	return out, nil
}

// trunk is the residual blocks and dec closed by the internal skip.
func (m *SRResNet) trunk() *skipAdd {
	return &skipAdd{Body: nn.NewSequential(m.Res, m.Dec)}
}

func (m *SRResNet) Config() SRResNetConfig { return m.cfg }

func (m *SRResNet) Children() []nn.Module {
	ms := []nn.Module{m.Enc, m.Res, m.Dec, m.PS1, m.PS2, m.Fc}
	if m.Up != nil {
		ms = append(ms, m.Up)
	}
	return ms
}

func (m *SRResNet) Params() []nn.Param {
	return namedParams([]string{"enc", "res", "dec", "ps1", "ps2", "fc"}, m.Children()[:6])
}

func (m *SRResNet) Tag() string {
	return fmt.Sprintf("SRResNet_%d_%d_nker%d_nblk%d_%s_%s", m.cfg.InChannels, m.cfg.OutChannels, m.cfg.Nker, m.cfg.Nblk, m.cfg.Norm, m.cfg.LearningType)
}
