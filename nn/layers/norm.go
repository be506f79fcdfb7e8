package layers

import (
	"fmt"
	"math"
	"sync"

	"resnet_lib/nn"
	"resnet_lib/tensor"
)

const (
	normEps      = 1e-5
	normMomentum = 0.1
)

// BatchNorm2D normalizes each channel over the batch and spatial axes.
// It starts in evaluation mode, normalizing with the running statistics.
type BatchNorm2D struct {
	channels int

	Gamma *tensor.Tensor // [channels]
	Beta  *tensor.Tensor // [channels]

	mu          sync.Mutex
	training    bool
	RunningMean *tensor.Tensor // [channels]
	RunningVar  *tensor.Tensor // [channels]
}

func NewBatchNorm2D(channels int) *BatchNorm2D {
	bn := &BatchNorm2D{
		channels:    channels,
		Gamma:       tensor.New(channels),
		Beta:        tensor.New(channels),
		RunningMean: tensor.New(channels),
		RunningVar:  tensor.New(channels),
	}
	bn.Gamma.Fill(1)
	bn.RunningVar.Fill(1)
	return bn
}

// SetTraining selects batch statistics (true) or running statistics (false).
func (bn *BatchNorm2D) SetTraining(training bool) {
	bn.mu.Lock()
	defer bn.mu.Unlock()
	bn.training = training
}

func (bn *BatchNorm2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, channels, height, width, err := x.Dims4()
	if err != nil {
		return nil, err
	}
	if channels != bn.channels {
		return nil, fmt.Errorf("%s: %w: expected %d channels, got %d", bn.Tag(), tensor.ErrShapeMismatch, bn.channels, channels)
	}
	plane := height * width

	mean := make([]float64, channels)
	variance := make([]float64, channels)

	bn.mu.Lock()
	if bn.training {
		count := float64(batchSize * plane)
		for c := 0; c < channels; c++ {
			sum, sq := 0.0, 0.0
			for b := 0; b < batchSize; b++ {
				for _, v := range x.Data[(b*channels+c)*plane : (b*channels+c+1)*plane] {
					sum += v
					sq += v * v
				}
			}
			mean[c] = sum / count
			variance[c] = math.Max(sq/count-mean[c]*mean[c], 0)

			unbiased := variance[c]
			if count > 1 {
				unbiased *= count / (count - 1)
			}
			bn.RunningMean.Data[c] = (1-normMomentum)*bn.RunningMean.Data[c] + normMomentum*mean[c]
			bn.RunningVar.Data[c] = (1-normMomentum)*bn.RunningVar.Data[c] + normMomentum*unbiased
		}
	} else {
		copy(mean, bn.RunningMean.Data)
		copy(variance, bn.RunningVar.Data)
	}
	bn.mu.Unlock()

	out := tensor.New(batchSize, channels, height, width)
	for b := 0; b < batchSize; b++ {
		for c := 0; c < channels; c++ {
			scale := bn.Gamma.Data[c] / math.Sqrt(variance[c]+normEps)
			shift := bn.Beta.Data[c] - mean[c]*scale
			off := (b*channels + c) * plane
			for i, v := range x.Data[off : off+plane] {
				out.Data[off+i] = v*scale + shift
			}
		}
	}
	return out, nil
}

func (bn *BatchNorm2D) Params() []nn.Param {
	return []nn.Param{
		{Name: "weight", Value: bn.Gamma},
		{Name: "bias", Value: bn.Beta},
	}
}

func (bn *BatchNorm2D) Tag() string {
	return fmt.Sprintf("BatchNorm2D_%d", bn.channels)
}

// InstanceNorm2D normalizes each channel of each sample over its spatial
// axes. It has no learnable parameters.
type InstanceNorm2D struct {
	channels int
}

func NewInstanceNorm2D(channels int) *InstanceNorm2D {
	return &InstanceNorm2D{channels: channels}
}

func (in *InstanceNorm2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, channels, height, width, err := x.Dims4()
	if err != nil {
		return nil, err
	}
	if channels != in.channels {
		return nil, fmt.Errorf("%s: %w: expected %d channels, got %d", in.Tag(), tensor.ErrShapeMismatch, in.channels, channels)
	}
	plane := height * width

	out := tensor.New(batchSize, channels, height, width)
	for i := 0; i < batchSize*channels; i++ {
		src := x.Data[i*plane : (i+1)*plane]
		sum, sq := 0.0, 0.0
		for _, v := range src {
			sum += v
			sq += v * v
		}
		mean := sum / float64(plane)
		variance := math.Max(sq/float64(plane)-mean*mean, 0)
		inv := 1 / math.Sqrt(variance+normEps)
		dst := out.Data[i*plane : (i+1)*plane]
		for j, v := range src {
			dst[j] = (v - mean) * inv
		}
	}
	return out, nil
}

func (in *InstanceNorm2D) Params() []nn.Param { return nil }

func (in *InstanceNorm2D) Tag() string {
	return fmt.Sprintf("InstanceNorm2D_%d", in.channels)
}

// newNorm returns the normalization layer for kind, or nil for nn.NormNone.
func newNorm(kind nn.Norm, channels int) (nn.Module, error) {
	switch kind {
	case nn.NormNone:
		return nil, nil
	case nn.NormBatch:
		return NewBatchNorm2D(channels), nil
	case nn.NormInstance:
		return NewInstanceNorm2D(channels), nil
	}
	return nil, fmt.Errorf("%w: %q", nn.ErrUnknownNorm, string(kind))
}
