package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

// Pipeline выполняет этапы строго по порядку и останавливается на первой ошибке
type Pipeline struct {
	stages  []port.Stage
	journal port.RunJournal
	newID   func() string
	now     func() time.Time
	log     *zap.Logger
}

// NewPipeline создаёт оркестратор; journal может быть nil
func NewPipeline(log *zap.Logger, journal port.RunJournal, newID func() string, stages ...port.Stage) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		stages:  stages,
		journal: journal,
		newID:   newID,
		now:     time.Now,
		log:     log,
	}
}

// Run запускает этапы. Упавший этап останавливает пайплайн, последующие
// этапы не выполняются, уже записанные артефакты не откатываются.
func (p *Pipeline) Run(ctx context.Context) entity.PipelineReport {
	report := entity.PipelineReport{RunID: p.newID()}
	log := p.log.With(zap.String("run_id", report.RunID))

	for _, stage := range p.stages {
		result := p.runStage(ctx, log, stage)
		report.Stages = append(report.Stages, result)
		p.record(ctx, log, report.RunID, result)

		if result.Status == entity.StageFailed {
			log.Error("pipeline failed", zap.String("stage", result.Stage), zap.Error(result.Err))
			return report
		}
	}

	log.Info("pipeline completed", zap.Int("stages", len(report.Stages)))
	return report
}

func (p *Pipeline) runStage(ctx context.Context, log *zap.Logger, stage port.Stage) entity.StageResult {
	result := entity.StageResult{Stage: stage.Name(), StartedAt: p.now()}
	log = log.With(zap.String("stage", result.Stage))

	log.Info("stage started")
	err := ctx.Err()
	if err == nil {
		err = stage.Run(ctx)
	}
	result.FinishedAt = p.now()

	if err != nil {
		result.Status = entity.StageFailed
		result.Err = err
		log.Error("stage failed", zap.Duration("took", result.Duration()), zap.Error(err))
		return result
	}

	result.Status = entity.StageSucceeded
	log.Info("stage completed", zap.Duration("took", result.Duration()))
	return result
}

func (p *Pipeline) record(ctx context.Context, log *zap.Logger, runID string, result entity.StageResult) {
	if p.journal == nil {
		return
	}
	// журнал пишем даже после отмены контекста
	if err := p.journal.Record(context.WithoutCancel(ctx), runID, result); err != nil {
		log.Warn("failed to record stage result", zap.String("stage", result.Stage), zap.Error(err))
	}
}
