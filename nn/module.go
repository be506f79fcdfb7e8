package nn

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"resnet_lib/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	// Params returns the learnable tensors of the module and its children,
	// named by their path inside the module.
	Params() []Param
	Tag() string
}

// Container is implemented by modules built from other modules.
type Container interface {
	Children() []Module
}

// Param is a named parameter tensor.
type Param struct {
	Name  string
	Value *tensor.Tensor
}

// PrefixParams prepends prefix to each parameter name.
func PrefixParams(prefix string, ps []Param) []Param {
	out := make([]Param, len(ps))
	for i, p := range ps {
		out[i] = Param{Name: prefix + "." + p.Name, Value: p.Value}
	}
	return out
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// NewSequential returns a Sequential over layers.
func NewSequential(layers ...Module) *Sequential {
	return &Sequential{Layers: layers}
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := x
	for i, layer := range s.Layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Tag(), err)
		}
	}
	return out, nil
}

// Params collects the parameters of every layer, prefixed by layer index.
func (s *Sequential) Params() []Param {
	var ps []Param
	for i, layer := range s.Layers {
		ps = append(ps, PrefixParams(strconv.Itoa(i), layer.Params())...)
	}
	return ps
}

// Children returns the layers.
func (s *Sequential) Children() []Module {
	return s.Layers
}

// Split cuts the chain into the layers before cut and the layers from cut on.
func (s *Sequential) Split(cut int) (head, tail *Sequential, err error) {
	if cut < 0 || cut > len(s.Layers) {
		return nil, nil, fmt.Errorf("cut %d out of range [0, %d]", cut, len(s.Layers))
	}
	return NewSequential(slices.Clone(s.Layers[:cut])...), NewSequential(slices.Clone(s.Layers[cut:])...), nil
}

func (s *Sequential) Tag() string {
	tags := make([]string, len(s.Layers))
	for i, m := range s.Layers {
		tags[i] = m.Tag()
	}
	return "Sequential[" + strings.Join(tags, ",") + "]"
}
