package models

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"resnet_lib/nn"
	"resnet_lib/nn/layers"
	"resnet_lib/tensor"
)

var ErrUnknownDepth = errors.New("unknown PoseResNet depth")

type poseArch struct {
	basic  bool
	stages []int
	numDec int
}

var poseArchs = map[int]poseArch{
	18:  {basic: true, stages: []int{2, 2, 2, 2}, numDec: 3},
	34:  {basic: true, stages: []int{3, 4, 6, 3}, numDec: 3},
	50:  {basic: false, stages: []int{3, 4, 6, 3}, numDec: 3},
	101: {basic: false, stages: []int{3, 4, 23, 3}, numDec: 3},
	152: {basic: false, stages: []int{3, 8, 36, 3}, numDec: 3},
}

// PoseDepths returns the supported NumLayers values in ascending order.
func PoseDepths() []int {
	depths := make([]int, 0, len(poseArchs))
	for d := range poseArchs {
		depths = append(depths, d)
	}
	slices.Sort(depths)
	return depths
}

// PoseResNetConfig configures the pose estimation network.
type PoseResNetConfig struct {
	InChannels   int
	OutChannels  int
	Nker         int
	LearningType nn.LearningType
	Norm         nn.Norm
	NumLayers    int
	// Seed for parameter initialization; 0 uses RESNET_SEED.
	Seed uint64
}

func DefaultPoseResNetConfig(in, out int) PoseResNetConfig {
	return PoseResNetConfig{
		InChannels:   in,
		OutChannels:  out,
		Nker:         defaultNker,
		LearningType: nn.Plain,
		Norm:         nn.NormBatch,
		NumLayers:    defaultNumLayers,
	}
}

// PoseBlockPlan describes one residual block of the PoseResNet trunk.
type PoseBlockPlan struct {
	Stage, Index int
	Bottleneck   bool
	KernelSize   int
	// InChannels is the width the block consumes: Nker for the first block,
	// the previous block's output afterwards.
	InChannels  int
	OutChannels int
	// NominalInChannels is base*inMult with inMult 1 for the very first block
	// and 2 otherwise. It only agrees with InChannels where the chain allows.
	NominalInChannels int
}

// PoseResNetPlan lays out the residual trunk for cfg without allocating any
// parameters.
func PoseResNetPlan(cfg PoseResNetConfig) ([]PoseBlockPlan, error) {
	arch, ok := poseArchs[cfg.NumLayers]
	if !ok {
		return nil, fmt.Errorf("%w: %d (want one of %v)", ErrUnknownDepth, cfg.NumLayers, PoseDepths())
	}

	var plan []PoseBlockPlan
	in := cfg.Nker
	for i, nblk := range arch.stages {
		base := cfg.Nker << i
		for j := 0; j < nblk; j++ {
			kernel, outMult := 3, 1
			if !arch.basic {
				kernel = 2*(j%2) + 1
				if j > 1 {
					outMult = 4
				}
			}
			inMult := 2
			if i == 0 && j == 0 {
				inMult = 1
			}
			b := PoseBlockPlan{
				Stage:             i,
				Index:             j,
				Bottleneck:        !arch.basic,
				KernelSize:        kernel,
				InChannels:        in,
				OutChannels:       base * outMult,
				NominalInChannels: base * inMult,
			}
			plan = append(plan, b)
			in = b.OutChannels
		}
	}
	return plan, nil
}

// PoseResNet is enc -> staged residual trunk -> transposed-conv decoder ->
// 1x1 projection.
type PoseResNet struct {
	Enc  *layers.CBR2D
	Res  *nn.Sequential
	Dec  *nn.Sequential
	Fc   *layers.CBR2D
	Plan []PoseBlockPlan

	cfg PoseResNetConfig
}

func NewPoseResNet(cfg PoseResNetConfig) (*PoseResNet, error) {
	lt, err := learningType(cfg.LearningType)
	if err != nil {
		return nil, fmt.Errorf("PoseResNet: %w", err)
	}
	cfg.LearningType = lt

	plan, err := PoseResNetPlan(cfg)
	if err != nil {
		return nil, err
	}
	arch := poseArchs[cfg.NumLayers]

	m := &PoseResNet{Plan: plan, cfg: cfg}
	if m.Enc, err = layers.NewCBR2D(conv3(cfg.InChannels, cfg.Nker, nn.NormNone, layers.ReLU(0))); err != nil {
		return nil, fmt.Errorf("PoseResNet enc: %w", err)
	}

	m.Res = nn.NewSequential()
	for _, b := range plan {
		rb, err := layers.NewResBlock(layers.ResBlockConfig{
			InChannels:  b.InChannels,
			OutChannels: b.OutChannels,
			KernelSize:  b.KernelSize,
			Bias:        true,
			Norm:        cfg.Norm,
			Relu:        layers.ReLU(0),
			Bottleneck:  b.Bottleneck,
		})
		if err != nil {
			return nil, fmt.Errorf("PoseResNet res %d.%d: %w", b.Stage, b.Index, err)
		}
		m.Res.Layers = append(m.Res.Layers, rb)
	}

	decWidth := 4 * cfg.Nker
	decIn := plan[len(plan)-1].OutChannels
	m.Dec = nn.NewSequential()
	for i := 0; i < arch.numDec; i++ {
		dcfg := conv3(decIn, decWidth, cfg.Norm, layers.ReLU(0))
		dec, err := layers.NewDECBR2D(dcfg)
		if err != nil {
			return nil, fmt.Errorf("PoseResNet dec %d: %w", i, err)
		}
		m.Dec.Layers = append(m.Dec.Layers, dec)
		decIn = decWidth
	}

	if m.Fc, err = layers.NewCBR2D(projection(decWidth, cfg.OutChannels)); err != nil {
		return nil, fmt.Errorf("PoseResNet fc: %w", err)
	}

	initialize(m, cfg.Seed)
	slog.Debug("built PoseResNet", "num_layers", cfg.NumLayers, "res_blocks", len(plan), "dec_blocks", arch.numDec, "nker", cfg.Nker, "params", nn.NumParams(m))
	return m, nil
}

func (m *PoseResNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := nn.NewSequential(m.Enc, m.Res, m.Dec, m.Fc).Forward(x)
	if err != nil {
		return nil, fmt.Errorf("PoseResNet: %w", err)
	}
	if m.cfg.LearningType == nn.Residual {
		if out, err = addInput(out, x); err != nil {
			return nil, fmt.Errorf("PoseResNet: %w", err)
		}
	}
	return out, nil
}

func (m *PoseResNet) Config() PoseResNetConfig { return m.cfg }

func (m *PoseResNet) Children() []nn.Module {
	return []nn.Module{m.Enc, m.Res, m.Dec, m.Fc}
}

func (m *PoseResNet) Params() []nn.Param {
	return namedParams([]string{"enc", "res", "dec", "fc"}, m.Children())
}

func (m *PoseResNet) Tag() string {
	return fmt.Sprintf("PoseResNet%d_%d_%d_nker%d_%s", m.cfg.NumLayers, m.cfg.InChannels, m.cfg.OutChannels, m.cfg.Nker, m.cfg.Norm)
}
