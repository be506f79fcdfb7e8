package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"testing"

	"resnet_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checker() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(60 * x), G: uint8(100 * y), B: 200, A: 255})
		}
	}
	return img
}

func TestToTensorRGB(t *testing.T) {
	x, err := ToTensor(checker(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2, 4}, x.Shape)

	assert.InDelta(t, 120.0/255, x.At(0, 0, 1, 2), 1e-9)
	assert.InDelta(t, 100.0/255, x.At(0, 1, 1, 3), 1e-9)
	assert.InDelta(t, 200.0/255, x.At(0, 2, 0, 0), 1e-9)
}

func TestToTensorGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix = []uint8{0, 51, 102, 255}
	x, err := ToTensor(img, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, x.Shape)
	assert.InDeltaSlice(t, []float64{0, 0.2, 0.4, 1}, x.Data, 1e-9)

	_, err = ToTensor(img, 2)
	assert.Error(t, err)
}

func TestTensorImageRoundTrip(t *testing.T) {
	src := checker()
	x, err := ToTensor(src, 3)
	require.NoError(t, err)
	img, err := FromTensor(x)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, img.(*image.RGBA).Pix)
}

func TestFromTensorClamps(t *testing.T) {
	x := tensor.New(1, 1, 1, 3)
	copy(x.Data, []float64{-0.5, 0.5, 2})
	img, err := FromTensor(x)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 128, 255}, img.(*image.Gray).Pix)

	_, err = FromTensor(tensor.New(1, 2, 1, 1))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestFromTensorNaN(t *testing.T) {
	x := tensor.New(1, 3, 1, 2)
	copy(x.Data, []float64{math.NaN(), 1, math.NaN(), math.Inf(1), 0.5, math.Inf(-1)})
	img, err := FromTensor(x)
	require.NoError(t, err)
	rgba := img.(*image.RGBA)
	assert.Equal(t, color.RGBA{R: 0, G: 0, B: 128, A: 255}, rgba.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 0, A: 255}, rgba.RGBAAt(1, 0))
}

func TestEncodeDecode(t *testing.T) {
	for _, name := range []string{"out.png", "out.JPG"} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, checker(), name))
		img, format, err := Decode(&buf)
		require.NoError(t, err, name)
		assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
		if name == "out.png" {
			assert.Equal(t, "png", format)
		} else {
			assert.Equal(t, "jpeg", format)
		}
	}

	_, _, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestResize(t *testing.T) {
	img, err := Resize(checker(), image.Point{X: 16, Y: 8}, ResizeNearestNeighbor)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
	assert.Equal(t, checker().At(1, 1), img.At(5, 6))

	_, err = Resize(checker(), image.Point{X: 2, Y: 2}, 42)
	assert.Error(t, err)
}

func TestComposite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{A: 0})
	out := Composite(img)
	r, g, b, a := out.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a})
}
