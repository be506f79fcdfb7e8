// Package models builds the ResNet, PoseResNet and SRResNet architectures
// from the blocks in nn/layers.
package models

import (
	"fmt"

	"resnet_lib/envconfig"
	"resnet_lib/nn"
	"resnet_lib/nn/layers"
	"resnet_lib/tensor"
	"resnet_lib/utils"

	"golang.org/x/exp/rand"
)

const (
	defaultNker      = 64
	defaultNblk      = 16
	defaultNumLayers = 50
)

// Model is a constructed architecture.
type Model interface {
	nn.Module
	nn.Container
}

// New builds the architecture named by cfg.Model.
func New(cfg utils.ModelConfig) (Model, error) {
	if err := utils.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	norm, err := nn.ParseNorm(cfg.Norm)
	if err != nil {
		return nil, err
	}
	lt, err := nn.ParseLearningType(cfg.LearningType)
	if err != nil {
		return nil, err
	}

	switch cfg.Model {
	case utils.ModelResNet:
		return NewResNet(ResNetConfig{
			InChannels:   cfg.InChannels,
			OutChannels:  cfg.OutChannels,
			Nker:         cfg.Nker,
			LearningType: lt,
			Norm:         norm,
			Nblk:         cfg.Nblk,
			Seed:         cfg.Seed,
		})
	case utils.ModelPoseResNet:
		return NewPoseResNet(PoseResNetConfig{
			InChannels:   cfg.InChannels,
			OutChannels:  cfg.OutChannels,
			Nker:         cfg.Nker,
			LearningType: lt,
			Norm:         norm,
			NumLayers:    cfg.NumLayers,
			Seed:         cfg.Seed,
		})
	case utils.ModelSRResNet:
		return NewSRResNet(SRResNetConfig{
			InChannels:   cfg.InChannels,
			OutChannels:  cfg.OutChannels,
			Nker:         cfg.Nker,
			LearningType: lt,
			Norm:         norm,
			Nblk:         cfg.Nblk,
			Seed:         cfg.Seed,
		})
	}
	return nil, fmt.Errorf("unknown model %q", cfg.Model)
}

func learningType(lt nn.LearningType) (nn.LearningType, error) {
	if lt == "" {
		return nn.Plain, nil
	}
	return nn.ParseLearningType(string(lt))
}

func initialize(m nn.Module, seed uint64) {
	if seed == 0 {
		seed = envconfig.Seed
	}
	nn.Initialize(m, rand.NewSource(seed))
}

// conv3 is a same-size 3x3 CBR2D with bias.
func conv3(in, out int, norm nn.Norm, relu *float64) layers.BlockConfig {
	return layers.BlockConfig{
		InChannels:  in,
		OutChannels: out,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
		Bias:        true,
		Norm:        norm,
		Relu:        relu,
	}
}

// projection is the final 1x1 convolution without norm or activation.
func projection(in, out int) layers.BlockConfig {
	return layers.BlockConfig{InChannels: in, OutChannels: out, KernelSize: 1, Stride: 1, Bias: true}
}

// residualTrunk chains nblk basic residual blocks of constant width.
func residualTrunk(width, nblk int, norm nn.Norm) (*nn.Sequential, error) {
	res := nn.NewSequential()
	for i := 0; i < nblk; i++ {
		rb, err := layers.NewResBlock(layers.ResBlockConfig{
			InChannels:  width,
			OutChannels: width,
			KernelSize:  3,
			Bias:        true,
			Norm:        norm,
			Relu:        layers.ReLU(0),
		})
		if err != nil {
			return nil, fmt.Errorf("res %d: %w", i, err)
		}
		res.Layers = append(res.Layers, rb)
	}
	return res, nil
}

// addInput adds the network input to out. A CHW input is matched to the
// batched output.
func addInput(out, x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 3 {
		var err error
		if x, err = x.Reshape(append([]int{1}, x.Shape...)...); err != nil {
			return nil, err
		}
	}
	sum, err := tensor.Add(out, x)
	if err != nil {
		return nil, fmt.Errorf("residual learning: %w", err)
	}
	return sum, nil
}

func namedParams(names []string, ms []nn.Module) []nn.Param {
	var ps []nn.Param
	for i, m := range ms {
		ps = append(ps, nn.PrefixParams(names[i], m.Params())...)
	}
	return ps
}
