package model

import (
	"errors"
	"fmt"

	"ctscan/internal/domain/port"
)

// ErrNotTrained артефакт является базовой моделью, а не обученной
var ErrNotTrained = errors.New("model artifact is not trained")

// Loader загружает обученный артефакт для инференса
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load читает артефакт. Отсутствие файла возвращается как ErrArtifactNotFound (и os.ErrNotExist).
func (l *Loader) Load(path string) (port.Classifier, error) {
	b, err := ReadBundle(path)
	if err != nil {
		return nil, err
	}
	if !b.Manifest.Trained {
		return nil, fmt.Errorf("%s: %w", path, ErrNotTrained)
	}
	return NewClassifier(b)
}

var _ port.ModelLoader = (*Loader)(nil)
