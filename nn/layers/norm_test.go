package layers

import (
	"math"
	"sync"
	"testing"

	"resnet_lib/nn"
	"resnet_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func channelStats(x *tensor.Tensor, b, c int) (mean, variance float64) {
	_, channels, h, w, _ := x.Dims4()
	plane := x.Data[(b*channels+c)*h*w : (b*channels+c+1)*h*w]
	for _, v := range plane {
		mean += v
	}
	mean /= float64(len(plane))
	for _, v := range plane {
		variance += (v - mean) * (v - mean)
	}
	return mean, variance / float64(len(plane))
}

func TestBatchNorm2D_EvalUsesRunningStats(t *testing.T) {
	bn := NewBatchNorm2D(2)
	bn.RunningMean.Data[1] = 2
	bn.RunningVar.Data[1] = 4
	bn.Gamma.Data[1] = 3
	bn.Beta.Data[1] = 1

	x := tensor.New(1, 2, 1, 2)
	copy(x.Data, []float64{1, -1, 2, 6})

	out, err := bn.Forward(x)
	require.NoError(t, err)

	inv0 := 1 / math.Sqrt(1+normEps)
	assert.InDelta(t, 1*inv0, out.Data[0], 1e-12)
	assert.InDelta(t, -1*inv0, out.Data[1], 1e-12)
	assert.InDelta(t, 1.0, out.Data[2], 1e-12)
	assert.InDelta(t, (6-2)/math.Sqrt(4+normEps)*3+1, out.Data[3], 1e-12)
}

func TestBatchNorm2D_TrainingNormalizesAndTracks(t *testing.T) {
	bn := NewBatchNorm2D(3)
	nn.SetTraining(bn, true)

	x := randomTensor(21, 4, 3, 5, 5)
	for i := range x.Data {
		x.Data[i] = x.Data[i]*2 + 5
	}
	out, err := bn.Forward(x)
	require.NoError(t, err)

	for c := 0; c < 3; c++ {
		sum, sq, n := 0.0, 0.0, 0.0
		for b := 0; b < 4; b++ {
			m, v := channelStats(out, b, c)
			sum += m * 25
			sq += (v + m*m) * 25
			n += 25
		}
		mean := sum / n
		assert.InDelta(t, 0, mean, 1e-9)
		assert.InDelta(t, 1, sq/n-mean*mean, 1e-3)
		assert.InDelta(t, 0.5, bn.RunningMean.Data[c], 0.1) // 0.1 * ~5
	}
}

func TestBatchNorm2D_ConcurrentTraining(t *testing.T) {
	bn := NewBatchNorm2D(2)
	bn.SetTraining(true)
	x := randomTensor(3, 2, 2, 3, 3)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bn.Forward(x)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestInstanceNorm2D(t *testing.T) {
	in := NewInstanceNorm2D(2)
	x := randomTensor(9, 3, 2, 4, 4)
	for i := range x.Data {
		x.Data[i] = x.Data[i]*float64(i%7+1) - 3
	}

	out, err := in.Forward(x)
	require.NoError(t, err)
	assert.Empty(t, in.Params())

	for b := 0; b < 3; b++ {
		for c := 0; c < 2; c++ {
			m, v := channelStats(out, b, c)
			assert.InDelta(t, 0, m, 1e-9)
			assert.InDelta(t, 1, v, 1e-3)
		}
	}
}

func TestNewNorm(t *testing.T) {
	m, err := newNorm(nn.NormNone, 3)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = newNorm(nn.NormBatch, 3)
	require.NoError(t, err)
	assert.IsType(t, &BatchNorm2D{}, m)

	m, err = newNorm(nn.NormInstance, 3)
	require.NoError(t, err)
	assert.IsType(t, &InstanceNorm2D{}, m)

	_, err = newNorm(nn.Norm("gnorm"), 3)
	assert.ErrorIs(t, err, nn.ErrUnknownNorm)
}
