package model

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"ctscan/config"
	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
	"ctscan/internal/infrastructure/vision"
)

// TrainConfig параметры обучения
type TrainConfig struct {
	BaseModelPath    string
	DataDir          string
	TrainedModelPath string
	PositiveClass    string
	Epochs           int
	BatchSize        int
	LearningRate     float64
	Augmentation     bool
	ValidationSplit  float64
	Seed             int64
	// Threshold порог вердикта для валидационной точности, тот же, что у инференса
	Threshold float64
}

// NewTrainConfig собирает параметры этапа из конфигурации
func NewTrainConfig(cfg *config.Config) TrainConfig {
	return TrainConfig{
		BaseModelPath:    cfg.PrepareBaseModel.BaseModelPath,
		DataDir:          cfg.Training.DataDir,
		TrainedModelPath: cfg.Training.TrainedModelPath,
		PositiveClass:    cfg.Training.PositiveClass,
		Epochs:           cfg.Params.Epochs,
		BatchSize:        cfg.Params.BatchSize,
		LearningRate:     cfg.Params.LearningRate,
		Augmentation:     cfg.Params.Augmentation,
		ValidationSplit:  cfg.Params.ValidationSplit,
		Seed:             cfg.Params.Seed,
		Threshold:        cfg.Inference.Threshold,
	}
}

// TrainStage дообучает голову базовой модели на распакованном датасете
type TrainStage struct {
	cfg TrainConfig
	log *zap.Logger
	now func() time.Time
}

func NewTrainStage(cfg TrainConfig, log *zap.Logger) *TrainStage {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrainStage{cfg: cfg, log: log, now: time.Now}
}

func (s *TrainStage) Name() string {
	return entity.StageTraining
}

// Run обучает модель и атомарно записывает артефакт. При ошибке
// промежуточный артефакт не остаётся.
func (s *TrainStage) Run(ctx context.Context) error {
	if err := s.run(ctx); err != nil {
		s.log.Error("training failed", zap.String("data_dir", s.cfg.DataDir), zap.Error(err))
		return err
	}
	return nil
}

func (s *TrainStage) run(ctx context.Context) error {
	bundle, err := ReadBundle(s.cfg.BaseModelPath)
	if err != nil {
		return fmt.Errorf("load base model: %w", err)
	}
	backbone, err := bundle.OpenBackbone()
	if err != nil {
		return fmt.Errorf("open backbone: %w", err)
	}
	defer backbone.Close()

	ds, err := LoadDataset(s.cfg.DataDir, s.cfg.PositiveClass)
	if err != nil {
		return err
	}
	s.log.Info("dataset loaded", zap.Strings("classes", ds.Classes), zap.Int("samples", len(ds.Samples)))

	train, val := splitSamples(ds.Samples, s.cfg.ValidationSplit, s.cfg.Seed)
	pre := vision.NewPreprocessor(bundle.Manifest.InputSize)

	trainX, trainY, err := extract(ctx, pre, backbone, train, s.cfg.Augmentation)
	if err != nil {
		return err
	}
	valX, valY, err := extract(ctx, pre, backbone, val, false)
	if err != nil {
		return err
	}

	head := bundle.Head
	losses, err := head.Fit(trainX, trainY, FitOptions{
		Epochs:       s.cfg.Epochs,
		BatchSize:    s.cfg.BatchSize,
		LearningRate: s.cfg.LearningRate,
		Seed:         s.cfg.Seed,
	})
	if err != nil {
		return fmt.Errorf("fit head: %w", err)
	}
	for i, loss := range losses {
		s.log.Debug("epoch finished", zap.Int("epoch", i+1), zap.Float64("loss", loss))
	}

	metrics := &TrainingMetrics{
		Epochs:            s.cfg.Epochs,
		TrainSamples:      len(trainX),
		ValidationSamples: len(valX),
		FinalLoss:         losses[len(losses)-1],
		TrainedAt:         s.now().UTC(),
	}
	threshold := s.cfg.Threshold
	if threshold <= 0 || threshold >= 1 {
		threshold = entity.DefaultThreshold
	}
	metrics.ValidationThreshold = threshold
	if len(valX) > 0 {
		metrics.ValidationAccuracy = head.Accuracy(valX, valY, threshold)
	}

	bundle.Head = head
	bundle.Manifest.Trained = true
	bundle.Manifest.Classes = ds.Classes
	bundle.Manifest.PositiveClass = s.cfg.PositiveClass
	bundle.Manifest.Metrics = metrics

	if err := WriteBundle(s.cfg.TrainedModelPath, bundle); err != nil {
		return fmt.Errorf("save trained model: %w", err)
	}
	s.log.Info("trained model saved",
		zap.String("path", s.cfg.TrainedModelPath),
		zap.Float64("final_loss", metrics.FinalLoss),
		zap.Float64("val_accuracy", metrics.ValidationAccuracy),
		zap.Int("train_samples", metrics.TrainSamples),
		zap.Int("val_samples", metrics.ValidationSamples),
	)
	return nil
}

// splitSamples перемешивает выборку из seed и отделяет долю split под валидацию.
// На обучение остаётся хотя бы один снимок.
func splitSamples(samples []Sample, split float64, seed int64) (train, val []Sample) {
	shuffled := append([]Sample(nil), samples...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	n := int(float64(len(shuffled)) * split)
	if n >= len(shuffled) {
		n = len(shuffled) - 1
	}
	return shuffled[n:], shuffled[:n]
}

func extract(ctx context.Context, pre *vision.Preprocessor, backbone vision.Backbone, samples []Sample, mirror bool) ([][]float64, []float64, error) {
	x := make([][]float64, 0, len(samples))
	y := make([]float64, 0, len(samples))
	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		tensor, err := pre.PrepareFile(sample.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sample %s: %w", sample.Path, err)
		}

		tensors := []entity.ImageTensor{tensor}
		if mirror {
			tensors = append(tensors, tensor.Mirror())
		}
		for _, t := range tensors {
			features, err := backbone.Extract(t)
			if err != nil {
				return nil, nil, fmt.Errorf("sample %s: %w", sample.Path, err)
			}
			x = append(x, features)
			y = append(y, sample.Label)
		}
	}
	return x, y, nil
}

var _ port.Stage = (*TrainStage)(nil)
