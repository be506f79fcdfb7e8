package layers

import (
	"fmt"
	"math"

	"resnet_lib/nn"
	"resnet_lib/tensor"

	"golang.org/x/exp/rand"
)

// ConvTranspose2D is the gradient of Conv2D with respect to its input, used
// as a learnable upsampling layer.
type ConvTranspose2D struct {
	inChan, outChan int
	kh, kw          int
	stride, padding int

	W *tensor.Tensor // weights: [inChan, outChan, kh, kw]
	B *tensor.Tensor // bias: [outChan], nil without bias
}

// NewConvTranspose2D creates a new ConvTranspose2D layer with zeroed parameters.
func NewConvTranspose2D(inChan, outChan, k, stride, padding int, bias bool) *ConvTranspose2D {
	if stride < 1 {
		stride = 1
	}
	c := &ConvTranspose2D{
		inChan:  inChan,
		outChan: outChan,
		kh:      k,
		kw:      k,
		stride:  stride,
		padding: padding,
		W:       tensor.New(inChan, outChan, k, k),
	}
	if bias {
		c.B = tensor.New(outChan)
	}
	return c
}

// Reset draws weights and bias from U(-1/sqrt(fanIn), 1/sqrt(fanIn)) where
// fanIn follows the weight layout, outChan*kh*kw.
func (c *ConvTranspose2D) Reset(src rand.Source) {
	bound := 1 / math.Sqrt(float64(c.outChan*c.kh*c.kw))
	c.W.Uniform(bound, src)
	if c.B != nil {
		c.B.Uniform(bound, src)
	}
}

// GetOutputShape returns the output dimensions for given input dimensions.
func (c *ConvTranspose2D) GetOutputShape(inH, inW int) (outH, outW int) {
	return (inH-1)*c.stride - 2*c.padding + c.kh, (inW-1)*c.stride - 2*c.padding + c.kw
}

func (c *ConvTranspose2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, inChan, height, width, err := input.Dims4()
	if err != nil {
		return nil, err
	}
	if inChan != c.inChan {
		return nil, fmt.Errorf("%s: %w: expected %d input channels, got %d", c.Tag(), tensor.ErrShapeMismatch, c.inChan, inChan)
	}

	outHeight, outWidth := c.GetOutputShape(height, width)
	if outHeight <= 0 || outWidth <= 0 {
		return nil, fmt.Errorf("%s: input %dx%d too small for padding", c.Tag(), height, width)
	}

	output := tensor.New(batchSize, c.outChan, outHeight, outWidth)

	k := c.outChan * c.kh * c.kw
	n := height * width
	inSize := c.inChan * n
	outSize := c.outChan * outHeight * outWidth

	err = forEachBatch(batchSize, func(b int) error {
		// cols[outChan*kh*kw, H*W] = W^T x
		cols := make([]float64, k*n)
		tensor.Gemm(cols, c.W.Data, input.Data[b*inSize:(b+1)*inSize], k, c.inChan, n, true)

		dst := output.Data[b*outSize : (b+1)*outSize]
		if c.B != nil {
			plane := outHeight * outWidth
			for oc := 0; oc < c.outChan; oc++ {
				row := dst[oc*plane : (oc+1)*plane]
				for i := range row {
					row[i] = c.B.Data[oc]
				}
			}
		}
		c.col2im(cols, height, width, outHeight, outWidth, dst)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// col2im scatters each column contribution back onto the output plane.
func (c *ConvTranspose2D) col2im(cols []float64, height, width, outHeight, outWidth int, dst []float64) {
	n := height * width
	for oc := 0; oc < c.outChan; oc++ {
		for dy := 0; dy < c.kh; dy++ {
			for dx := 0; dx < c.kw; dx++ {
				row := cols[((oc*c.kh+dy)*c.kw+dx)*n:]
				for y := 0; y < height; y++ {
					oy := y*c.stride - c.padding + dy
					if oy < 0 || oy >= outHeight {
						continue
					}
					for x := 0; x < width; x++ {
						ox := x*c.stride - c.padding + dx
						if ox < 0 || ox >= outWidth {
							continue
						}
						dst[(oc*outHeight+oy)*outWidth+ox] += row[y*width+x]
					}
				}
			}
		}
	}
}

func (c *ConvTranspose2D) Params() []nn.Param {
	ps := []nn.Param{{Name: "weight", Value: c.W}}
	if c.B != nil {
		ps = append(ps, nn.Param{Name: "bias", Value: c.B})
	}
	return ps
}

func (c *ConvTranspose2D) Tag() string {
	return fmt.Sprintf("ConvTranspose2D_%d_%d_%d_%d", c.inChan, c.outChan, c.kh, c.kw)
}
