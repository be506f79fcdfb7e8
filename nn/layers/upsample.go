package layers

import (
	"fmt"

	"resnet_lib/nn"
	"resnet_lib/tensor"
)

// Upsample repeats every pixel Scale times along both spatial axes.
type Upsample struct {
	Scale int
}

func NewUpsample(scale int) *Upsample {
	return &Upsample{Scale: scale}
}

func (u *Upsample) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, channels, height, width, err := x.Dims4()
	if err != nil {
		return nil, err
	}
	if u.Scale < 1 {
		return nil, fmt.Errorf("%s: scale must be positive", u.Tag())
	}
	outH, outW := height*u.Scale, width*u.Scale

	out := tensor.New(batchSize, channels, outH, outW)
	for i := 0; i < batchSize*channels; i++ {
		src := x.Data[i*height*width:]
		dst := out.Data[i*outH*outW:]
		for y := 0; y < outH; y++ {
			for xx := 0; xx < outW; xx++ {
				dst[y*outW+xx] = src[(y/u.Scale)*width+xx/u.Scale]
			}
		}
	}
	return out, nil
}

func (u *Upsample) Params() []nn.Param { return nil }

func (u *Upsample) Tag() string {
	return fmt.Sprintf("Upsample->%d", u.Scale)
}
