package port

import (
	"context"

	"ctscan/internal/domain/entity"
)

// Stage один этап обучающего пайплайна
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// RunJournal журнал запусков пайплайна
type RunJournal interface {
	// Record сохраняет результат этапа запуска runID
	Record(ctx context.Context, runID string, result entity.StageResult) error
}
