package layers

import (
	"fmt"

	"resnet_lib/nn"
	"resnet_lib/tensor"
)

// PixelShuffle moves channel depth into space:
// [B, C*ry*rx, H, W] -> [B, C, H*ry, W*rx], with input channel c*ry*rx+i*rx+j
// landing at output (c, h*ry+i, w*rx+j).
type PixelShuffle struct {
	Ry, Rx int
}

func NewPixelShuffle(ry, rx int) *PixelShuffle {
	return &PixelShuffle{Ry: ry, Rx: rx}
}

func (p *PixelShuffle) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, channels, height, width, err := x.Dims4()
	if err != nil {
		return nil, err
	}
	r := p.Ry * p.Rx
	if r <= 0 || channels%r != 0 {
		return nil, fmt.Errorf("%s: %w: %d channels not divisible by %d", p.Tag(), tensor.ErrShapeMismatch, channels, r)
	}
	outChan := channels / r
	outH, outW := height*p.Ry, width*p.Rx

	out := tensor.New(batchSize, outChan, outH, outW)
	for b := 0; b < batchSize; b++ {
		for c := 0; c < outChan; c++ {
			for i := 0; i < p.Ry; i++ {
				for j := 0; j < p.Rx; j++ {
					src := x.Data[((b*channels+c*r+i*p.Rx+j)*height)*width:]
					for h := 0; h < height; h++ {
						dst := out.Data[((b*outChan+c)*outH+h*p.Ry+i)*outW:]
						for w := 0; w < width; w++ {
							dst[w*p.Rx+j] = src[h*width+w]
						}
					}
				}
			}
		}
	}
	return out, nil
}

func (p *PixelShuffle) Params() []nn.Param { return nil }

func (p *PixelShuffle) Tag() string {
	return fmt.Sprintf("PixelShuffle_%d_%d", p.Ry, p.Rx)
}

// PixelUnshuffle is the inverse of PixelShuffle:
// [B, C, H*ry, W*rx] -> [B, C*ry*rx, H, W].
type PixelUnshuffle struct {
	Ry, Rx int
}

func NewPixelUnshuffle(ry, rx int) *PixelUnshuffle {
	return &PixelUnshuffle{Ry: ry, Rx: rx}
}

func (p *PixelUnshuffle) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, channels, height, width, err := x.Dims4()
	if err != nil {
		return nil, err
	}
	if p.Ry <= 0 || p.Rx <= 0 || height%p.Ry != 0 || width%p.Rx != 0 {
		return nil, fmt.Errorf("%s: %w: %dx%d not divisible by %dx%d", p.Tag(), tensor.ErrShapeMismatch, height, width, p.Ry, p.Rx)
	}
	r := p.Ry * p.Rx
	outChan := channels * r
	outH, outW := height/p.Ry, width/p.Rx

	out := tensor.New(batchSize, outChan, outH, outW)
	for b := 0; b < batchSize; b++ {
		for c := 0; c < channels; c++ {
			for i := 0; i < p.Ry; i++ {
				for j := 0; j < p.Rx; j++ {
					dst := out.Data[((b*outChan+c*r+i*p.Rx+j)*outH)*outW:]
					for h := 0; h < outH; h++ {
						src := x.Data[((b*channels+c)*height+h*p.Ry+i)*width:]
						for w := 0; w < outW; w++ {
							dst[h*outW+w] = src[w*p.Rx+j]
						}
					}
				}
			}
		}
	}
	return out, nil
}

func (p *PixelUnshuffle) Params() []nn.Param { return nil }

func (p *PixelUnshuffle) Tag() string {
	return fmt.Sprintf("PixelUnshuffle_%d_%d", p.Ry, p.Rx)
}
