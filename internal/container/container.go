package container

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ctscan/config"
	app "ctscan/internal/application"
	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
	"ctscan/internal/infrastructure/ingestion"
	"ctscan/internal/infrastructure/model"
	"ctscan/internal/infrastructure/storage"
	"ctscan/internal/infrastructure/vision"
)

// Container сервисы веб-приложения и бота
type Container struct {
	SessionService  *app.SessionService
	AnalysisService *app.AnalysisService
	Model           *app.ModelHandle
	Loader          port.ModelLoader
}

// New собирает сервисы инференса. Отсутствие модели не ошибка:
// handle остаётся пустым, анализ отклоняется.
func New(cfg *config.Config, log *zap.Logger) (*Container, error) {
	policy, err := entity.NewVerdictPolicy(cfg.Inference.Threshold)
	if err != nil {
		return nil, err
	}

	sessionRepo := storage.NewMemorySessionRepository(cfg.HTTP.MaxSessions, cfg.HTTP.SessionTTL)
	sessionService := app.NewSessionService(sessionRepo, uuid.NewString)

	loader := model.NewLoader()
	handle := app.OpenModel(loader, cfg.Inference.ModelPath, log)
	analysisService := app.NewAnalysisService(
		sessionService,
		handle,
		vision.NewPreprocessor(cfg.Params.ImageSize),
		policy,
		log,
	)

	return &Container{
		SessionService:  sessionService,
		AnalysisService: analysisService,
		Model:           handle,
		Loader:          loader,
	}, nil
}

// Fetcher загрузчик для http(s), s3 и локальных источников
func Fetcher(cfg *config.Config) port.ArchiveFetcher {
	f := &ingestion.MultiFetcher{
		HTTP: ingestion.NewHTTPFetcher(http.DefaultClient),
		File: ingestion.FileFetcher{},
	}
	if usesS3(cfg) {
		f.S3 = ingestion.NewS3Fetcher(ingestion.ConnectS3(cfg.DataIngestion.S3))
	}
	return f
}

func usesS3(cfg *config.Config) bool {
	return strings.HasPrefix(cfg.DataIngestion.SourceURL, "s3://") ||
		strings.HasPrefix(cfg.PrepareBaseModel.BackboneSource, "s3://")
}

// Stages этапы пайплайна в порядке выполнения
func Stages(cfg *config.Config, log *zap.Logger) []port.Stage {
	fetcher := Fetcher(cfg)
	return []port.Stage{
		ingestion.NewStage(ingestion.NewStageConfig(cfg), fetcher, log.Named("ingestion")),
		model.NewPrepareStage(model.NewPrepareConfig(cfg), fetcher, log.Named("prepare")),
		model.NewTrainStage(model.NewTrainConfig(cfg), log.Named("training")),
	}
}

// Pipeline собирает оркестратор; journal может быть nil
func Pipeline(cfg *config.Config, log *zap.Logger, journal port.RunJournal, stages ...port.Stage) *app.Pipeline {
	if len(stages) == 0 {
		stages = Stages(cfg, log)
	}
	return app.NewPipeline(log, journal, uuid.NewString, stages...)
}
