//go:build !gocv
// +build !gocv

package vision

import (
	"ctscan/internal/domain/entity"
)

type DNNBackbone struct{}

// NewDNNBackbone возвращает ошибку, если сборка без тега gocv.
func NewDNNBackbone(model []byte, inputSize, featureDim int) (*DNNBackbone, error) {
	_ = model
	_ = inputSize
	_ = featureDim
	return nil, ErrGoCVDisabled
}

func (b *DNNBackbone) FeatureDim() int { return 0 }

// Extract возвращает ошибку, если сборка без тега gocv.
func (b *DNNBackbone) Extract(tensor entity.ImageTensor) ([]float64, error) {
	_ = tensor
	return nil, ErrGoCVDisabled
}

func (b *DNNBackbone) Close() error { return nil }

var _ Backbone = (*DNNBackbone)(nil)
