package layers

import (
	"testing"

	"resnet_lib/nn"
	"resnet_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestCBR2D_Composition(t *testing.T) {
	cbr, err := NewCBR2D(BlockConfig{InChannels: 3, OutChannels: 4, KernelSize: 3, Stride: 1, Padding: 1, Bias: true, Norm: nn.NormBatch, Relu: ReLU(0)})
	require.NoError(t, err)
	assert.Len(t, cbr.Children(), 3)
	assert.Equal(t, "CBR2D[Conv2D_3_4_3_3,BatchNorm2D_4,ReLU]", cbr.Tag())

	names := []string{}
	for _, p := range cbr.Params() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"conv.weight", "conv.bias", "norm.weight", "norm.bias"}, names)

	fc, err := NewCBR2D(BlockConfig{InChannels: 4, OutChannels: 2, KernelSize: 1})
	require.NoError(t, err)
	assert.Len(t, fc.Children(), 1)

	nn.Initialize(cbr, rand.NewSource(1))
	out, err := cbr.Forward(randomTensor(2, 1, 3, 6, 6))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 6, 6}, out.Shape)
	for _, v := range out.Data {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestCBR2D_UnknownNorm(t *testing.T) {
	_, err := NewCBR2D(BlockConfig{InChannels: 1, OutChannels: 1, KernelSize: 1, Norm: nn.Norm("layer")})
	assert.ErrorIs(t, err, nn.ErrUnknownNorm)
}

func TestDECBR2D_KeepsSize(t *testing.T) {
	dec, err := NewDECBR2D(BlockConfig{InChannels: 6, OutChannels: 4, KernelSize: 3, Stride: 1, Padding: 1, Bias: true, Norm: nn.NormInstance, Relu: ReLU(0)})
	require.NoError(t, err)
	nn.Initialize(dec, rand.NewSource(2))

	out, err := dec.Forward(randomTensor(3, 2, 6, 5, 7))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5, 7}, out.Shape)
}

func TestResBlock_IdentitySkip(t *testing.T) {
	rb, err := NewResBlock(ResBlockConfig{InChannels: 4, OutChannels: 4, KernelSize: 3, Bias: true, Norm: nn.NormBatch, Relu: ReLU(0)})
	require.NoError(t, err)
	assert.Nil(t, rb.Skip)
	assert.Len(t, rb.Main.Layers, 2)

	// zero body: output must equal input
	x := randomTensor(8, 2, 4, 5, 5)
	out, err := rb.Forward(x)
	require.NoError(t, err)
	assert.True(t, tensor.AllClose(x, out, 1e-12))

	nn.Initialize(rb, rand.NewSource(3))
	out, err = rb.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, x.Shape, out.Shape)
	assert.False(t, tensor.AllClose(x, out, 1e-6))
}

func TestResBlock_CHWInput(t *testing.T) {
	rb, err := NewResBlock(ResBlockConfig{InChannels: 2, OutChannels: 2, KernelSize: 3})
	require.NoError(t, err)
	out, err := rb.Forward(tensor.New(2, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4, 4}, out.Shape)
}

func TestResBlock_ProjectionSkip(t *testing.T) {
	rb, err := NewResBlock(ResBlockConfig{InChannels: 4, OutChannels: 8, KernelSize: 3, Bias: true, Norm: nn.NormBatch, Relu: ReLU(0)})
	require.NoError(t, err)
	require.NotNil(t, rb.Skip)
	assert.Equal(t, 1, rb.Skip.Config().KernelSize)

	nn.Initialize(rb, rand.NewSource(4))
	out, err := rb.Forward(randomTensor(5, 1, 4, 6, 6))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, 6, 6}, out.Shape)
}

func TestResBlock_Bottleneck(t *testing.T) {
	for _, k := range []int{1, 3} {
		rb, err := NewResBlock(ResBlockConfig{InChannels: 8, OutChannels: 16, KernelSize: k, Bias: true, Norm: nn.NormBatch, Relu: ReLU(0), Bottleneck: true})
		require.NoError(t, err)
		require.Len(t, rb.Main.Layers, 3)

		mid := rb.Main.Layers[1].(*CBR2D).Config()
		assert.Equal(t, 4, mid.InChannels)
		assert.Equal(t, 4, mid.OutChannels)
		assert.Equal(t, k, mid.KernelSize)
		assert.Equal(t, 1, rb.Main.Layers[0].(*CBR2D).Config().KernelSize)

		nn.Initialize(rb, rand.NewSource(6))
		out, err := rb.Forward(randomTensor(7, 2, 8, 5, 5))
		require.NoError(t, err)
		assert.Equal(t, []int{2, 16, 5, 5}, out.Shape)
	}
}

func TestResBlock_CountsConvs(t *testing.T) {
	rb, err := NewResBlock(ResBlockConfig{InChannels: 4, OutChannels: 8, KernelSize: 3, Norm: nn.NormBatch, Relu: ReLU(0), Bottleneck: true})
	require.NoError(t, err)
	assert.Equal(t, 4, nn.Count[*Conv2D](rb))
	assert.Equal(t, 4, nn.Count[*BatchNorm2D](rb))
	assert.Equal(t, 4, nn.Count[*CBR2D](rb))
}
