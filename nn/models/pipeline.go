package models

import (
	"fmt"

	"resnet_lib/nn"
	"resnet_lib/tensor"
)

// skipAdd runs Body and adds its input to the result.
type skipAdd struct {
	Body *nn.Sequential
}

func (s *skipAdd) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := s.Body.Forward(x)
	if err != nil {
		return nil, err
	}
	return tensor.Add(out, x)
}

func (s *skipAdd) Children() []nn.Module { return []nn.Module{s.Body} }
func (s *skipAdd) Params() []nn.Param    { return s.Body.Params() }
func (s *skipAdd) Tag() string           { return "Skip[" + s.Body.Tag() + "]" }

// Pipeline lays m out as a flat chain of stages whose composition equals
// m.Forward, so it can be cut for split inference. The SRResNet trunk and its
// internal skip stay one stage. Networks that add their input to the output
// cannot be chained.
func Pipeline(m Model) (*nn.Sequential, error) {
	seq := nn.NewSequential()
	switch v := m.(type) {
	case *ResNet:
		if v.cfg.LearningType == nn.Residual {
			return nil, fmt.Errorf("%s: residual learning spans the whole network", v.Tag())
		}
		seq.Layers = append(seq.Layers, v.Enc)
		seq.Layers = append(seq.Layers, v.Res.Layers...)
		seq.Layers = append(seq.Layers, v.Dec, v.Fc)
	case *PoseResNet:
		if v.cfg.LearningType == nn.Residual {
			return nil, fmt.Errorf("%s: residual learning spans the whole network", v.Tag())
		}
		seq.Layers = append(seq.Layers, v.Enc)
		seq.Layers = append(seq.Layers, v.Res.Layers...)
		seq.Layers = append(seq.Layers, v.Dec.Layers...)
		seq.Layers = append(seq.Layers, v.Fc)
	case *SRResNet:
		if v.Up != nil {
			return nil, fmt.Errorf("%s: residual learning spans the whole network", v.Tag())
		}
		seq.Layers = append(seq.Layers, v.Enc, v.trunk())
		seq.Layers = append(seq.Layers, v.PS1.Layers...)
		seq.Layers = append(seq.Layers, v.PS2.Layers...)
		seq.Layers = append(seq.Layers, v.Fc)
	default:
		return nil, fmt.Errorf("no pipeline for %T", m)
	}
	return seq, nil
}
