package layers

import (
	"fmt"

	"resnet_lib/nn"
	"resnet_lib/tensor"
)

// LeakyReLU applies max(x, Slope*x). A zero slope is a plain ReLU.
type LeakyReLU struct {
	Slope float64
}

func NewLeakyReLU(slope float64) *LeakyReLU {
	return &LeakyReLU{Slope: slope}
}

func (a *LeakyReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.LeakyRelu(x, a.Slope), nil
}

func (a *LeakyReLU) Params() []nn.Param { return nil }

func (a *LeakyReLU) Tag() string {
	if a.Slope == 0 {
		return "ReLU"
	}
	return fmt.Sprintf("LeakyReLU_%g", a.Slope)
}

// ReLU returns a pointer to slope for block configurations, where a nil
// slope means no activation.
func ReLU(slope float64) *float64 {
	return &slope
}
