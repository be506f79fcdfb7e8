package layers

import (
	"fmt"

	"resnet_lib/nn"
	"resnet_lib/tensor"
)

// BlockConfig describes a convolution followed by optional normalization and
// an optional leaky ReLU.
type BlockConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	Bias        bool
	Norm        nn.Norm
	// Relu is the negative slope of the trailing activation; nil omits it.
	Relu *float64
}

// unit holds the shared norm/activation tail of CBR2D and DECBR2D.
type unit struct {
	conv nn.Module
	norm nn.Module
	act  *LeakyReLU
}

func newUnit(conv nn.Module, cfg BlockConfig) (unit, error) {
	norm, err := newNorm(cfg.Norm, cfg.OutChannels)
	if err != nil {
		return unit{}, err
	}
	u := unit{conv: conv, norm: norm}
	if cfg.Relu != nil {
		u.act = NewLeakyReLU(*cfg.Relu)
	}
	return u, nil
}

func (u *unit) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := u.conv.Forward(x)
	if err != nil {
		return nil, err
	}
	if u.norm != nil {
		if out, err = u.norm.Forward(out); err != nil {
			return nil, err
		}
	}
	if u.act != nil {
		if out, err = u.act.Forward(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (u *unit) children() []nn.Module {
	ms := []nn.Module{u.conv}
	if u.norm != nil {
		ms = append(ms, u.norm)
	}
	if u.act != nil {
		ms = append(ms, u.act)
	}
	return ms
}

func (u *unit) params() []nn.Param {
	ps := nn.PrefixParams("conv", u.conv.Params())
	if u.norm != nil {
		ps = append(ps, nn.PrefixParams("norm", u.norm.Params())...)
	}
	return ps
}

func (u *unit) tag(name string) string {
	t := name + "[" + u.conv.Tag()
	if u.norm != nil {
		t += "," + u.norm.Tag()
	}
	if u.act != nil {
		t += "," + u.act.Tag()
	}
	return t + "]"
}

// CBR2D is Conv2D -> norm -> leaky ReLU.
type CBR2D struct {
	unit
	Conv *Conv2D
	cfg  BlockConfig
}

func NewCBR2D(cfg BlockConfig) (*CBR2D, error) {
	conv := NewConv2D(cfg.InChannels, cfg.OutChannels, cfg.KernelSize, cfg.Stride, cfg.Padding, cfg.Bias)
	u, err := newUnit(conv, cfg)
	if err != nil {
		return nil, fmt.Errorf("CBR2D: %w", err)
	}
	return &CBR2D{unit: u, Conv: conv, cfg: cfg}, nil
}

func (b *CBR2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) { return b.forward(x) }
func (b *CBR2D) Children() []nn.Module                             { return b.children() }
func (b *CBR2D) Params() []nn.Param                                { return b.params() }
func (b *CBR2D) Tag() string                                       { return b.tag("CBR2D") }

// Config returns the configuration the block was built from.
func (b *CBR2D) Config() BlockConfig { return b.cfg }

// DECBR2D is ConvTranspose2D -> norm -> leaky ReLU.
type DECBR2D struct {
	unit
	Conv *ConvTranspose2D
	cfg  BlockConfig
}

func NewDECBR2D(cfg BlockConfig) (*DECBR2D, error) {
	conv := NewConvTranspose2D(cfg.InChannels, cfg.OutChannels, cfg.KernelSize, cfg.Stride, cfg.Padding, cfg.Bias)
	u, err := newUnit(conv, cfg)
	if err != nil {
		return nil, fmt.Errorf("DECBR2D: %w", err)
	}
	return &DECBR2D{unit: u, Conv: conv, cfg: cfg}, nil
}

func (b *DECBR2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) { return b.forward(x) }
func (b *DECBR2D) Children() []nn.Module                             { return b.children() }
func (b *DECBR2D) Params() []nn.Param                                { return b.params() }
func (b *DECBR2D) Tag() string                                       { return b.tag("DECBR2D") }

func (b *DECBR2D) Config() BlockConfig { return b.cfg }
