package entity

import (
	"errors"
	"time"
)

// Имена этапов обучающего пайплайна
const (
	StageIngestion = "Data Ingestion"
	StagePrepare   = "Prepare Base Model"
	StageTraining  = "Training"
)

// StageStatus итог выполнения этапа
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageResult результат одного этапа пайплайна
type StageResult struct {
	Stage      string
	Status     StageStatus
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration длительность этапа
func (r StageResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// PipelineReport итог запуска пайплайна: этапы в порядке выполнения
type PipelineReport struct {
	RunID  string
	Stages []StageResult
}

// Succeeded true, если все этапы завершились успешно
func (r PipelineReport) Succeeded() bool {
	return r.Err() == nil
}

// Err возвращает ошибку первого упавшего этапа без изменений
func (r PipelineReport) Err() error {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			if s.Err == nil {
				return errors.New("stage " + s.Stage + " failed")
			}
			return s.Err
		}
	}
	return nil
}

// Failed возвращает результат упавшего этапа
func (r PipelineReport) Failed() (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return s, true
		}
	}
	return StageResult{}, false
}
