package port

import "ctscan/internal/domain/entity"

// ImagePreprocessor проверяет загрузку и готовит тензор для модели
type ImagePreprocessor interface {
	// Prepare декодирует изображение, приводит к фиксированному размеру и нормирует в [0,1]
	Prepare(upload entity.Upload) (entity.ImageTensor, entity.ScanInfo, error)
}
