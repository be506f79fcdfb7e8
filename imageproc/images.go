// Package imageproc converts between decoded images and NCHW tensors.
package imageproc

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strings"

	"resnet_lib/tensor"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	ResizeBilinear = iota
	ResizeNearestNeighbor
	ResizeApproxBilinear
	ResizeCatmullrom
)

// Decode reads a png, jpeg, gif, bmp, tiff or webp image.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Encode writes img as jpeg when name ends in .jpg or .jpeg and as png
// otherwise.
func Encode(w io.Writer, img image.Image, name string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	default:
		return png.Encode(w, img)
	}
}

// Composite returns an image with the alpha channel removed by drawing over a white background.
func Composite(img image.Image) image.Image {
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}

// Resize returns an image which has been scaled to a new size.
func Resize(img image.Image, newSize image.Point, method int) (image.Image, error) {
	kernels := map[int]draw.Interpolator{
		ResizeBilinear:        draw.BiLinear,
		ResizeNearestNeighbor: draw.NearestNeighbor,
		ResizeApproxBilinear:  draw.ApproxBiLinear,
		ResizeCatmullrom:      draw.CatmullRom,
	}
	kernel, ok := kernels[method]
	if !ok {
		return nil, fmt.Errorf("no resizing method %d", method)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newSize.X, newSize.Y))
	kernel.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)
	return dst, nil
}

// ToTensor returns img as a [1, channels, H, W] tensor scaled to [0, 1].
// channels is 1 for luma or 3 for RGB.
func ToTensor(img image.Image, channels int) (*tensor.Tensor, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("images have 1 or 3 channels, not %d", channels)
	}
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	t := tensor.New(1, channels, h, w)
	plane := h * w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			i := y*w + x
			if channels == 1 {
				g := color.Gray16Model.Convert(c).(color.Gray16)
				t.Data[i] = float64(g.Y) / 0xffff
				continue
			}
			r, g, b, _ := c.RGBA()
			t.Data[i] = float64(r) / 0xffff
			t.Data[plane+i] = float64(g) / 0xffff
			t.Data[2*plane+i] = float64(b) / 0xffff
		}
	}
	return t, nil
}

// FromTensor converts the first item of a 1- or 3-channel tensor back to an
// image, clamping values to [0, 1]. NaN maps to 0.
func FromTensor(t *tensor.Tensor) (image.Image, error) {
	_, channels, h, w, err := t.Dims4()
	if err != nil {
		return nil, err
	}
	plane := h * w
	at := func(c, i int) uint8 {
		v := t.Data[c*plane+i]
		if math.IsNaN(v) {
			return 0
		}
		v = min(max(v, 0), 1)
		return uint8(v*255 + 0.5)
	}

	switch channels {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i := 0; i < plane; i++ {
			img.Pix[i] = at(0, i)
		}
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < plane; i++ {
			img.Pix[4*i] = at(0, i)
			img.Pix[4*i+1] = at(1, i)
			img.Pix[4*i+2] = at(2, i)
			img.Pix[4*i+3] = 0xff
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: cannot convert %d channels to an image", tensor.ErrShapeMismatch, channels)
}
