package nn

import (
	"errors"
	"testing"

	"resnet_lib/tensor"
)

// dummy layer: adds a constant
type addLayer struct {
	c float64
	w *tensor.Tensor
}

func (l *addLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x.Clone()
	for i := range out.Data {
		out.Data[i] += l.c
	}
	return out, nil
}

func (l *addLayer) Params() []Param {
	if l.w == nil {
		return nil
	}
	return []Param{{Name: "weight", Value: l.w}}
}

func (l *addLayer) Tag() string { return "add" }

// dummy layer: error on forward
type errLayer struct{}

func (l *errLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, errors.New("fail")
}
func (l *errLayer) Params() []Param { return nil }
func (l *errLayer) Tag() string     { return "err" }

type modeLayer struct {
	addLayer
	training bool
}

func (l *modeLayer) SetTraining(training bool) { l.training = training }

func TestSequentialPlain(t *testing.T) {
	a := tensor.New(1)
	a.Data[0] = 1
	seq := NewSequential(&addLayer{c: 2}, &addLayer{c: 3})
	out, err := seq.Forward(a)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0] != 6 {
		t.Fatalf("expected 6, got %f", out.Data[0])
	}
	if a.Data[0] != 1 {
		t.Fatalf("input was modified")
	}
}

func TestSequentialError(t *testing.T) {
	seq := NewSequential(&addLayer{c: 0}, &errLayer{})
	if _, err := seq.Forward(tensor.New(1)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSequentialParamsAndCount(t *testing.T) {
	inner := NewSequential(&addLayer{w: tensor.New(2, 2)}, &errLayer{})
	seq := NewSequential(&addLayer{w: tensor.New(3)}, inner)

	ps := seq.Params()
	if len(ps) != 2 {
		t.Fatalf("expected 2 params, got %d", len(ps))
	}
	if ps[0].Name != "0.weight" || ps[1].Name != "1.0.weight" {
		t.Errorf("unexpected names %q %q", ps[0].Name, ps[1].Name)
	}
	if n := NumParams(seq); n != 7 {
		t.Errorf("expected 7 scalars, got %d", n)
	}
	if n := Count[*addLayer](seq); n != 2 {
		t.Errorf("expected 2 addLayers, got %d", n)
	}
	if n := Count[*Sequential](seq); n != 2 {
		t.Errorf("expected 2 Sequentials, got %d", n)
	}
}

func TestSequentialSplit(t *testing.T) {
	seq := NewSequential(&addLayer{c: 1}, &addLayer{c: 2}, &addLayer{c: 3})
	head, tail, err := seq.Split(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(head.Layers) != 1 || len(tail.Layers) != 2 {
		t.Fatalf("unexpected split %d/%d", len(head.Layers), len(tail.Layers))
	}
	x := tensor.New(1)
	mid, _ := head.Forward(x)
	out, _ := tail.Forward(mid)
	if out.Data[0] != 6 {
		t.Fatalf("expected 6, got %f", out.Data[0])
	}
	if _, _, err := seq.Split(4); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestSequentialSplitIndependent(t *testing.T) {
	seq := NewSequential(&addLayer{c: 1}, &addLayer{c: 2}, &addLayer{c: 3})
	head, tail, err := seq.Split(1)
	if err != nil {
		t.Fatal(err)
	}
	head.Layers = append(head.Layers, &errLayer{})
	if tail.Layers[0].Tag() != "add" || seq.Layers[1].Tag() != "add" {
		t.Fatalf("appending to head overwrote tail: %s", tail.Tag())
	}
	out, err := tail.Forward(tensor.New(1))
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0] != 5 {
		t.Fatalf("expected 5, got %f", out.Data[0])
	}
}

func TestSetTraining(t *testing.T) {
	m := &modeLayer{}
	SetTraining(NewSequential(m), true)
	if !m.training {
		t.Fatalf("expected training mode")
	}
	SetTraining(NewSequential(m), false)
	if m.training {
		t.Fatalf("expected eval mode")
	}
}

func TestParseNormAndLearningType(t *testing.T) {
	for in, want := range map[string]Norm{"bnorm": NormBatch, "inorm": NormInstance, "": NormNone, "none": NormNone} {
		got, err := ParseNorm(in)
		if err != nil || got != want {
			t.Errorf("ParseNorm(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseNorm("lnorm"); !errors.Is(err, ErrUnknownNorm) {
		t.Errorf("expected ErrUnknownNorm, got %v", err)
	}
	if lt, err := ParseLearningType("residual"); err != nil || lt != Residual {
		t.Errorf("ParseLearningType(residual) = %q, %v", lt, err)
	}
	if _, err := ParseLearningType("dense"); !errors.Is(err, ErrUnknownLearningType) {
		t.Errorf("expected ErrUnknownLearningType, got %v", err)
	}
}
