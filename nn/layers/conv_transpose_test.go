package layers

import (
	"testing"

	"resnet_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// With stride 1, a transposed convolution equals a convolution with the
// kernel flipped, in/out channels swapped and padding k-1-p.
func TestConvTranspose2D_MatchesFlippedConv(t *testing.T) {
	const in, out, k, pad = 3, 2, 3, 1
	tconv := NewConvTranspose2D(in, out, k, 1, pad, true)
	tconv.Reset(rand.NewSource(11))

	conv := NewConv2D(in, out, k, 1, k-1-pad, true)
	for ic := 0; ic < in; ic++ {
		for oc := 0; oc < out; oc++ {
			for dy := 0; dy < k; dy++ {
				for dx := 0; dx < k; dx++ {
					conv.W.Set(tconv.W.At(ic, oc, k-1-dy, k-1-dx), oc, ic, dy, dx)
				}
			}
		}
	}
	copy(conv.B.Data, tconv.B.Data)

	x := randomTensor(13, 2, in, 6, 5)
	got, err := tconv.Forward(x)
	require.NoError(t, err)
	want, err := conv.Forward(x)
	require.NoError(t, err)

	assert.Equal(t, []int{2, out, 6, 5}, got.Shape)
	assert.True(t, tensor.AllClose(want, got, 1e-9))
}

func TestConvTranspose2D_StrideUpsamples(t *testing.T) {
	tconv := NewConvTranspose2D(1, 1, 2, 2, 0, false)
	tconv.W.Fill(1)

	x := tensor.New(1, 1, 2, 2)
	copy(x.Data, []float64{1, 2, 3, 4})

	out, err := tconv.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 4, 4}, out.Shape)
	want := []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}
	assert.Equal(t, want, out.Data)
}

func TestConvTranspose2D_OutputShape(t *testing.T) {
	tconv := NewConvTranspose2D(4, 4, 3, 2, 1, true)
	h, w := tconv.GetOutputShape(3, 5)
	assert.Equal(t, 5, h)
	assert.Equal(t, 9, w)

	_, err := tconv.Forward(tensor.New(1, 3, 3, 3))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}
