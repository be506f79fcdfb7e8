package layers

import (
	"fmt"
	"math"

	"resnet_lib/nn"
	"resnet_lib/tensor"

	"golang.org/x/exp/rand"
)

// Conv2D is a 2D convolutional layer with square kernels, zero padding and
// a shared stride for both spatial axes.
type Conv2D struct {
	inChan, outChan int // number of input/output channels
	kh, kw          int // kernel height and width
	stride, padding int

	W *tensor.Tensor // weights: [outChan, inChan, kh, kw]
	B *tensor.Tensor // bias: [outChan], nil without bias
}

// NewConv2D creates a new Conv2D layer with zeroed parameters.
// A stride below 1 is treated as 1.
func NewConv2D(inChan, outChan, k, stride, padding int, bias bool) *Conv2D {
	if stride < 1 {
		stride = 1
	}
	c := &Conv2D{
		inChan:  inChan,
		outChan: outChan,
		kh:      k,
		kw:      k,
		stride:  stride,
		padding: padding,
		W:       tensor.New(outChan, inChan, k, k),
	}
	if bias {
		c.B = tensor.New(outChan)
	}
	return c
}

// Reset draws weights and bias from U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func (c *Conv2D) Reset(src rand.Source) {
	bound := 1 / math.Sqrt(float64(c.inChan*c.kh*c.kw))
	c.W.Uniform(bound, src)
	if c.B != nil {
		c.B.Uniform(bound, src)
	}
}

// GetOutputShape returns the output dimensions for given input dimensions.
func (c *Conv2D) GetOutputShape(inH, inW int) (outH, outW int) {
	return (inH+2*c.padding-c.kh)/c.stride + 1, (inW+2*c.padding-c.kw)/c.stride + 1
}

// Forward convolves an NCHW (or CHW) input and always returns NCHW.
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, inChan, height, width, err := input.Dims4()
	if err != nil {
		return nil, err
	}
	if inChan != c.inChan {
		return nil, fmt.Errorf("%s: %w: expected %d input channels, got %d", c.Tag(), tensor.ErrShapeMismatch, c.inChan, inChan)
	}

	outHeight, outWidth := c.GetOutputShape(height, width)
	if outHeight <= 0 || outWidth <= 0 {
		return nil, fmt.Errorf("%s: input %dx%d too small for kernel", c.Tag(), height, width)
	}

	output := tensor.New(batchSize, c.outChan, outHeight, outWidth)

	k := c.inChan * c.kh * c.kw
	n := outHeight * outWidth
	inSize := c.inChan * height * width
	outSize := c.outChan * n

	err = forEachBatch(batchSize, func(b int) error {
		col := make([]float64, k*n)
		c.im2col(input.Data[b*inSize:(b+1)*inSize], height, width, outHeight, outWidth, col)

		// dst[outChan, outH*outW] = W · col
		dst := output.Data[b*outSize : (b+1)*outSize]
		tensor.Gemm(dst, c.W.Data, col, c.outChan, k, n, false)
		if c.B != nil {
			for oc := 0; oc < c.outChan; oc++ {
				row := dst[oc*n : (oc+1)*n]
				for i := range row {
					row[i] += c.B.Data[oc]
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// im2col unrolls every receptive field of one image into a column of col,
// laid out as [inChan*kh*kw, outH*outW].
func (c *Conv2D) im2col(img []float64, height, width, outHeight, outWidth int, col []float64) {
	n := outHeight * outWidth
	for ic := 0; ic < c.inChan; ic++ {
		for dy := 0; dy < c.kh; dy++ {
			for dx := 0; dx < c.kw; dx++ {
				row := col[((ic*c.kh+dy)*c.kw+dx)*n:]
				for y := 0; y < outHeight; y++ {
					iy := y*c.stride + dy - c.padding
					if iy < 0 || iy >= height {
						continue
					}
					for x := 0; x < outWidth; x++ {
						ix := x*c.stride + dx - c.padding
						if ix < 0 || ix >= width {
							continue
						}
						row[y*outWidth+x] = img[(ic*height+iy)*width+ix]
					}
				}
			}
		}
	}
}

func (c *Conv2D) Params() []nn.Param {
	ps := []nn.Param{{Name: "weight", Value: c.W}}
	if c.B != nil {
		ps = append(ps, nn.Param{Name: "bias", Value: c.B})
	}
	return ps
}

func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%d_%d_%d_%d", c.inChan, c.outChan, c.kh, c.kw)
}
