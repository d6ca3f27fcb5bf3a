package model

import (
	"context"
	"fmt"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
	"ctscan/internal/infrastructure/vision"
)

// Classifier обученная модель: backbone + голова. После загрузки не меняется.
type Classifier struct {
	backbone  vision.Backbone
	head      Head
	inputSize int
}

// NewClassifier собирает классификатор из артефакта
func NewClassifier(b *Bundle) (*Classifier, error) {
	backbone, err := b.OpenBackbone()
	if err != nil {
		return nil, err
	}
	if backbone.FeatureDim() != b.Head.Dim() {
		backbone.Close()
		return nil, fmt.Errorf("backbone produces %d features, head expects %d", backbone.FeatureDim(), b.Head.Dim())
	}
	return &Classifier{
		backbone:  backbone,
		head:      b.Head,
		inputSize: b.Manifest.InputSize,
	}, nil
}

// Predict возвращает оценку риска в [0,1]
func (c *Classifier) Predict(ctx context.Context, tensor entity.ImageTensor) (entity.RiskScore, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if tensor.Size != c.inputSize {
		return 0, fmt.Errorf("tensor size %d, model expects %d", tensor.Size, c.inputSize)
	}

	features, err := c.backbone.Extract(tensor)
	if err != nil {
		return 0, fmt.Errorf("extract features: %w", err)
	}
	p, err := c.head.Score(features)
	if err != nil {
		return 0, err
	}
	return entity.NewRiskScore(p)
}

func (c *Classifier) Close() error {
	return c.backbone.Close()
}

var _ port.Classifier = (*Classifier)(nil)
