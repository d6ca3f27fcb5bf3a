package ingestion

import (
	"context"

	"go.uber.org/zap"

	"ctscan/config"
	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

// StageConfig параметры этапа загрузки данных
type StageConfig struct {
	SourceURL     string
	LocalDataFile string
	UnzipDir      string
}

func NewStageConfig(cfg *config.Config) StageConfig {
	return StageConfig{
		SourceURL:     cfg.DataIngestion.SourceURL,
		LocalDataFile: cfg.DataIngestion.LocalDataFile,
		UnzipDir:      cfg.DataIngestion.UnzipDir,
	}
}

// Stage скачивает архив датасета и распаковывает его
type Stage struct {
	cfg     StageConfig
	fetcher port.ArchiveFetcher
	log     *zap.Logger
}

func NewStage(cfg StageConfig, fetcher port.ArchiveFetcher, log *zap.Logger) *Stage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stage{cfg: cfg, fetcher: fetcher, log: log}
}

func (s *Stage) Name() string {
	return entity.StageIngestion
}

func (s *Stage) Run(ctx context.Context) error {
	log := s.log.With(zap.String("source", s.cfg.SourceURL), zap.String("archive", s.cfg.LocalDataFile))

	log.Info("downloading dataset")
	if err := s.fetcher.Fetch(ctx, s.cfg.SourceURL, s.cfg.LocalDataFile); err != nil {
		log.Error("download failed", zap.Error(err))
		return err
	}

	log.Info("extracting dataset", zap.String("unzip_dir", s.cfg.UnzipDir))
	if err := Extract(s.cfg.LocalDataFile, s.cfg.UnzipDir); err != nil {
		log.Error("extract failed", zap.String("unzip_dir", s.cfg.UnzipDir), zap.Error(err))
		return err
	}
	return nil
}

var _ port.Stage = (*Stage)(nil)
