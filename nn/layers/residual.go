package layers

import (
	"fmt"

	"resnet_lib/nn"
	"resnet_lib/tensor"
)

// bottleneckExpansion is the ratio between a bottleneck block's output width
// and its inner width.
const bottleneckExpansion = 4

// ResBlockConfig describes a residual block. Padding is always KernelSize/2,
// so a block never changes the spatial size of its input.
type ResBlockConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Bias        bool
	Norm        nn.Norm
	Relu        *float64
	// Bottleneck selects the 1x1 -> kxk -> 1x1 variant instead of two kxk units.
	Bottleneck bool
}

// ResBlock adds the output of a chain of CBR2D units to its input. When the
// channel count changes, the input goes through a 1x1 projection first.
type ResBlock struct {
	Main *nn.Sequential
	// Skip is nil for an identity shortcut.
	Skip *CBR2D

	cfg ResBlockConfig
}

func NewResBlock(cfg ResBlockConfig) (*ResBlock, error) {
	unitCfg := func(in, out, k int, relu *float64) BlockConfig {
		return BlockConfig{
			InChannels:  in,
			OutChannels: out,
			KernelSize:  k,
			Stride:      1,
			Padding:     k / 2,
			Bias:        cfg.Bias,
			Norm:        cfg.Norm,
			Relu:        relu,
		}
	}

	var plan []BlockConfig
	if cfg.Bottleneck {
		mid := max(cfg.OutChannels/bottleneckExpansion, 1)
		plan = []BlockConfig{
			unitCfg(cfg.InChannels, mid, 1, cfg.Relu),
			unitCfg(mid, mid, cfg.KernelSize, cfg.Relu),
			unitCfg(mid, cfg.OutChannels, 1, nil),
		}
	} else {
		plan = []BlockConfig{
			unitCfg(cfg.InChannels, cfg.OutChannels, cfg.KernelSize, cfg.Relu),
			unitCfg(cfg.OutChannels, cfg.OutChannels, cfg.KernelSize, nil),
		}
	}

	main := nn.NewSequential()
	for _, uc := range plan {
		u, err := NewCBR2D(uc)
		if err != nil {
			return nil, fmt.Errorf("ResBlock: %w", err)
		}
		main.Layers = append(main.Layers, u)
	}

	r := &ResBlock{Main: main, cfg: cfg}
	if cfg.InChannels != cfg.OutChannels {
		skip, err := NewCBR2D(unitCfg(cfg.InChannels, cfg.OutChannels, 1, nil))
		if err != nil {
			return nil, fmt.Errorf("ResBlock: %w", err)
		}
		r.Skip = skip
	}
	return r, nil
}

func (r *ResBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := r.Main.Forward(x)
	if err != nil {
		return nil, err
	}
	shortcut := x
	if r.Skip != nil {
		if shortcut, err = r.Skip.Forward(x); err != nil {
			return nil, err
		}
	} else if len(x.Shape) == 3 {
		// Convolutions always produce NCHW; match a CHW input to it.
		if shortcut, err = x.Reshape(append([]int{1}, x.Shape...)...); err != nil {
			return nil, err
		}
	}
	sum, err := tensor.Add(out, shortcut)
	if err != nil {
		return nil, fmt.Errorf("ResBlock skip connection: %w", err)
	}
	return sum, nil
}

// Config returns the configuration the block was built from.
func (r *ResBlock) Config() ResBlockConfig { return r.cfg }

func (r *ResBlock) Children() []nn.Module {
	if r.Skip == nil {
		return []nn.Module{r.Main}
	}
	return []nn.Module{r.Main, r.Skip}
}

func (r *ResBlock) Params() []nn.Param {
	ps := nn.PrefixParams("main", r.Main.Params())
	if r.Skip != nil {
		ps = append(ps, nn.PrefixParams("skip", r.Skip.Params())...)
	}
	return ps
}

func (r *ResBlock) Tag() string {
	kind := "basic"
	if r.cfg.Bottleneck {
		kind = "bottleneck"
	}
	return fmt.Sprintf("ResBlock_%s_%d_%d_%d", kind, r.cfg.InChannels, r.cfg.OutChannels, r.cfg.KernelSize)
}
