package nn

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownNorm         = errors.New("unknown normalization")
	ErrUnknownLearningType = errors.New("unknown learning type")
)

// Norm selects the normalization that follows a convolution.
type Norm string

const (
	NormNone     Norm = ""
	NormBatch    Norm = "bnorm"
	NormInstance Norm = "inorm"
)

// ParseNorm accepts "bnorm", "inorm", and "" or "none" for no normalization.
func ParseNorm(s string) (Norm, error) {
	switch s {
	case "", "none":
		return NormNone, nil
	case string(NormBatch):
		return NormBatch, nil
	case string(NormInstance):
		return NormInstance, nil
	}
	return NormNone, fmt.Errorf("%w: %q", ErrUnknownNorm, s)
}

func (n Norm) String() string {
	if n == NormNone {
		return "none"
	}
	return string(n)
}

// LearningType chooses whether a network predicts its output directly or a
// correction that is added to its input.
type LearningType string

const (
	Plain    LearningType = "plain"
	Residual LearningType = "residual"
)

func ParseLearningType(s string) (LearningType, error) {
	switch LearningType(s) {
	case Plain, Residual:
		return LearningType(s), nil
	}
	return Plain, fmt.Errorf("%w: %q", ErrUnknownLearningType, s)
}
