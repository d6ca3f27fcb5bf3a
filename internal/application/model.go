package app

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"ctscan/internal/domain/port"
)

// ErrModelUnavailable артефакт модели не был загружен
var ErrModelUnavailable = errors.New("model unavailable")

type loadedModel struct {
	classifier port.Classifier
}

// ModelHandle ссылка на загруженную модель: присутствует или отсутствует.
// Загруженная модель больше не заменяется.
type ModelHandle struct {
	path   string
	model  atomic.Pointer[loadedModel]
	reason error
}

// OpenModel загружает артефакт один раз. Ошибка загрузки не фатальна:
// возвращается отсутствующий handle с причиной.
func OpenModel(loader port.ModelLoader, path string, log *zap.Logger) *ModelHandle {
	if log == nil {
		log = zap.NewNop()
	}

	h := &ModelHandle{path: path}
	classifier, err := loader.Load(path)
	switch {
	case err == nil:
		h.model.Store(&loadedModel{classifier: classifier})
		log.Info("model loaded", zap.String("path", path))
	case errors.Is(err, os.ErrNotExist):
		h.reason = err
		log.Warn("model file not found, analysis disabled", zap.String("path", path))
	default:
		h.reason = err
		log.Error("model artifact is unusable, analysis disabled", zap.String("path", path), zap.Error(err))
	}
	return h
}

// NewModelHandle оборачивает уже загруженный классификатор; nil означает отсутствие модели
func NewModelHandle(path string, classifier port.Classifier) *ModelHandle {
	h := &ModelHandle{path: path}
	if classifier != nil {
		h.model.Store(&loadedModel{classifier: classifier})
	}
	return h
}

// Path путь к артефакту
func (h *ModelHandle) Path() string {
	return h.path
}

// Available true, если модель загружена
func (h *ModelHandle) Available() bool {
	return h.model.Load() != nil
}

// Classifier возвращает модель или ErrModelUnavailable
func (h *ModelHandle) Classifier() (port.Classifier, error) {
	if m := h.model.Load(); m != nil {
		return m.classifier, nil
	}
	return nil, fmt.Errorf("%w: model file not found at %s", ErrModelUnavailable, h.path)
}

// Promote делает отсутствующую модель доступной. Если модель уже есть, возвращает false.
func (h *ModelHandle) Promote(classifier port.Classifier) bool {
	if classifier == nil {
		return false
	}
	return h.model.CompareAndSwap(nil, &loadedModel{classifier: classifier})
}

// Reason причина отсутствия модели
func (h *ModelHandle) Reason() error {
	if h.Available() {
		return nil
	}
	return h.reason
}
