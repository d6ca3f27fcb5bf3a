package port

import (
	"context"

	"ctscan/internal/domain/entity"
)

// Classifier загруженная модель: оценивает риск по подготовленному изображению
type Classifier interface {
	// Predict возвращает оценку риска в [0,1]
	Predict(ctx context.Context, tensor entity.ImageTensor) (entity.RiskScore, error)
}

// ModelLoader загружает артефакт модели с диска
type ModelLoader interface {
	// Load возвращает классификатор; отсутствие файла сообщается ошибкой с os.ErrNotExist
	Load(path string) (Classifier, error)
}
