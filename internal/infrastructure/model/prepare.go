package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"ctscan/config"
	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

// PrepareConfig параметры подготовки базовой модели
type PrepareConfig struct {
	BaseModelPath  string
	Backbone       string
	BackboneSource string
	FeatureDim     int
	InputSize      int
	PoolingGrid    int
	PositiveClass  string
	Seed           int64
}

// NewPrepareConfig собирает параметры этапа из конфигурации
func NewPrepareConfig(cfg *config.Config) PrepareConfig {
	return PrepareConfig{
		BaseModelPath:  cfg.PrepareBaseModel.BaseModelPath,
		Backbone:       cfg.PrepareBaseModel.Backbone,
		BackboneSource: cfg.PrepareBaseModel.BackboneSource,
		FeatureDim:     cfg.PrepareBaseModel.FeatureDim,
		InputSize:      cfg.Params.ImageSize,
		PoolingGrid:    cfg.Params.PoolingGrid,
		PositiveClass:  cfg.Training.PositiveClass,
		Seed:           cfg.Params.Seed,
	}
}

// PrepareStage строит базовую модель (предобученный backbone + новая голова)
// и перезаписывает артефакт без условий.
type PrepareStage struct {
	cfg     PrepareConfig
	fetcher port.ArchiveFetcher
	log     *zap.Logger
	now     func() time.Time
}

// NewPrepareStage создаёт этап; fetcher нужен только для onnx backbone
func NewPrepareStage(cfg PrepareConfig, fetcher port.ArchiveFetcher, log *zap.Logger) *PrepareStage {
	if log == nil {
		log = zap.NewNop()
	}
	return &PrepareStage{cfg: cfg, fetcher: fetcher, log: log, now: time.Now}
}

func (s *PrepareStage) Name() string {
	return entity.StagePrepare
}

func (s *PrepareStage) Run(ctx context.Context) error {
	bundle, err := s.Build(ctx)
	if err != nil {
		s.log.Error("prepare base model failed", zap.String("backbone", s.cfg.Backbone), zap.Error(err))
		return err
	}
	if err := WriteBundle(s.cfg.BaseModelPath, bundle); err != nil {
		s.log.Error("save base model failed", zap.String("path", s.cfg.BaseModelPath), zap.Error(err))
		return err
	}
	s.log.Info("base model saved",
		zap.String("path", s.cfg.BaseModelPath),
		zap.String("backbone", bundle.Manifest.Backbone.Kind),
		zap.Int("feature_dim", bundle.Manifest.Backbone.FeatureDim),
	)
	return nil
}

// Build собирает базовую модель в памяти
func (s *PrepareStage) Build(ctx context.Context) (*Bundle, error) {
	b := &Bundle{
		Manifest: Manifest{
			Format:        BundleFormat,
			Version:       BundleVersion,
			InputSize:     s.cfg.InputSize,
			PositiveClass: s.cfg.PositiveClass,
			CreatedAt:     s.now().UTC(),
		},
	}

	switch s.cfg.Backbone {
	case config.BackbonePooling:
		b.Manifest.Backbone = BackboneSpec{
			Kind:       config.BackbonePooling,
			Grid:       s.cfg.PoolingGrid,
			FeatureDim: s.cfg.PoolingGrid * s.cfg.PoolingGrid * 3,
		}
	case config.BackboneONNX:
		data, err := s.fetchBackbone(ctx)
		if err != nil {
			return nil, err
		}
		b.BackboneModel = data
		b.Manifest.Backbone = BackboneSpec{Kind: config.BackboneONNX, FeatureDim: s.cfg.FeatureDim}
	default:
		return nil, fmt.Errorf("unknown backbone %q", s.cfg.Backbone)
	}

	// проверяем, что backbone открывается, и узнаём длину признаков
	backbone, err := b.OpenBackbone()
	if err != nil {
		return nil, fmt.Errorf("open backbone: %w", err)
	}
	b.Manifest.Backbone.FeatureDim = backbone.FeatureDim()
	backbone.Close()

	b.Head = NewHead(b.Manifest.Backbone.FeatureDim, s.cfg.Seed)
	return b, nil
}

func (s *PrepareStage) fetchBackbone(ctx context.Context) ([]byte, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured for backbone source %s", s.cfg.BackboneSource)
	}
	dir := filepath.Dir(s.cfg.BaseModelPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create base model dir: %w", err)
	}
	dst := filepath.Join(dir, "backbone.onnx")
	s.log.Info("fetching pretrained backbone", zap.String("source", s.cfg.BackboneSource), zap.String("dst", dst))
	if err := s.fetcher.Fetch(ctx, s.cfg.BackboneSource, dst); err != nil {
		return nil, fmt.Errorf("fetch backbone: %w", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("read backbone: %w", err)
	}
	return data, nil
}

var _ port.Stage = (*PrepareStage)(nil)
