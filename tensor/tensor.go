package tensor

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrShapeMismatch is returned when two tensors that must agree in shape do not.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a simple n-D array backed by a flat []float64.
// Image tensors use NCHW layout.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float64, numel(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// FromData copies data into a tensor of the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: append([]int(nil), shape...),
	}, nil
}

func numel(shape []int) int {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return total
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if numel(shape) != len(t.Data) {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShapeMismatch, t.Shape, shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// Dims4 reports the NCHW dimensions of an image tensor.
// A 3-D tensor [C, H, W] is treated as a batch of one.
func (t *Tensor) Dims4() (b, c, h, w int, err error) {
	switch len(t.Shape) {
	case 4:
		return t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3], nil
	case 3:
		return 1, t.Shape[0], t.Shape[1], t.Shape[2], nil
	default:
		return 0, 0, 0, 0, fmt.Errorf("input must be 3D or 4D tensor, got shape %v", t.Shape)
	}
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Add returns a+b (same shape), or error if shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a, b) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// Gemm writes op(a)·b into dst. a is m×k, or k×m when transA is set; b is
// k×n and dst is m×n, all row-major. dst must not overlap a or b.
func Gemm(dst, a, b []float64, m, k, n int, transA bool) {
	var am mat.Matrix
	if transA {
		am = mat.NewDense(k, m, a).T()
	} else {
		am = mat.NewDense(m, k, a)
	}
	mat.NewDense(m, n, dst).Mul(am, mat.NewDense(k, n, b))
}

// LeakyRelu applies max(x, slope*x) elementwise; slope 0 is a plain ReLU.
func LeakyRelu(a *Tensor, slope float64) *Tensor {
	out := New(a.Shape...)
	for i, v := range a.Data {
		if v > 0 {
			out.Data[i] = v
		} else {
			out.Data[i] = slope * v
		}
	}
	return out
}

// Uniform fills t with samples from U(-bound, bound) drawn from src.
func (t *Tensor) Uniform(bound float64, src rand.Source) {
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	for i := range t.Data {
		t.Data[i] = dist.Rand()
	}
}

// AllClose reports whether a and b have the same shape and every element
// differs by at most tol.
func AllClose(a, b *Tensor, tol float64) bool {
	if !SameShape(a, b) {
		return false
	}
	for i := range a.Data {
		if math.Abs(a.Data[i]-b.Data[i]) > tol {
			return false
		}
	}
	return true
}

// At returns the element at the given indices.
// For a 4D tensor [a, b, c, d], At(i, j, k, l) returns the element at position [i][j][k][l].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}

func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}

	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}
