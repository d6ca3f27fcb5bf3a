package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath путь к конфигу, если не задан ни флагом, ни CTSCAN_CONFIG
const DefaultPath = "config/config.yaml"

const (
	BackbonePooling = "pooling"
	BackboneONNX    = "onnx"
)

type Config struct {
	ArtifactsRoot    string                 `yaml:"artifacts_root"`
	DataIngestion    DataIngestionConfig    `yaml:"data_ingestion"`
	PrepareBaseModel PrepareBaseModelConfig `yaml:"prepare_base_model"`
	Training         TrainingConfig         `yaml:"training"`
	Params           Params                 `yaml:"params"`
	Inference        InferenceConfig        `yaml:"inference"`
	HTTP             HTTPConfig             `yaml:"http"`
	Telegram         TelegramConfig         `yaml:"telegram"`
	Pipeline         PipelineConfig         `yaml:"pipeline"`
	Log              LogConfig              `yaml:"log"`
}

type DataIngestionConfig struct {
	SourceURL     string   `yaml:"source_url"`
	LocalDataFile string   `yaml:"local_data_file"`
	UnzipDir      string   `yaml:"unzip_dir"`
	S3            S3Config `yaml:"s3"`
}

// S3Config параметры доступа к s3:// источникам (подходит и для MinIO)
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type PrepareBaseModelConfig struct {
	BaseModelPath  string `yaml:"base_model_path"`
	Backbone       string `yaml:"backbone"`
	BackboneSource string `yaml:"backbone_source"`
	FeatureDim     int    `yaml:"feature_dim"`
}

type TrainingConfig struct {
	DataDir          string `yaml:"data_dir"`
	TrainedModelPath string `yaml:"trained_model_path"`
	PositiveClass    string `yaml:"positive_class"`
}

// Params гиперпараметры обучения
type Params struct {
	ImageSize       int     `yaml:"image_size"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float64 `yaml:"learning_rate"`
	Augmentation    bool    `yaml:"augmentation"`
	ValidationSplit float64 `yaml:"validation_split"`
	Seed            int64   `yaml:"seed"`
	PoolingGrid     int     `yaml:"pooling_grid"`
}

type InferenceConfig struct {
	ModelPath string  `yaml:"model_path"`
	Threshold float64 `yaml:"threshold"`
	Watch     bool    `yaml:"watch"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	MaxSessions    int           `yaml:"max_sessions"`
	HistoryDisplay int           `yaml:"history_display"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type PipelineConfig struct {
	Journal string `yaml:"journal"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultArtifactsRoot корень артефактов, если artifacts_root не задан
const DefaultArtifactsRoot = "artifacts"

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return defaultsAt(DefaultArtifactsRoot)
}

// defaultsAt строит умолчания, где все пути артефактов лежат под root
func defaultsAt(root string) *Config {
	return &Config{
		ArtifactsRoot: root,
		DataIngestion: DataIngestionConfig{
			SourceURL:     "https://drive.google.com/file/d/1z0mreUtRmR-P-magILsDR3T7M6IkGXtY/view?usp=sharing",
			LocalDataFile: filepath.Join(root, "data_ingestion", "data.zip"),
			UnzipDir:      filepath.Join(root, "data_ingestion"),
		},
		PrepareBaseModel: PrepareBaseModelConfig{
			BaseModelPath: filepath.Join(root, "prepare_base_model", "base_model.ctm"),
			Backbone:      BackbonePooling,
		},
		Training: TrainingConfig{
			DataDir:          filepath.Join(root, "data_ingestion", "Chest-CT-Scan-data"),
			TrainedModelPath: filepath.Join(root, "training", "model.ctm"),
			PositiveClass:    "adenocarcinoma",
		},
		Params: Params{
			ImageSize:       224,
			Epochs:          10,
			BatchSize:       16,
			LearningRate:    0.01,
			Augmentation:    true,
			ValidationSplit: 0.2,
			Seed:            42,
			PoolingGrid:     8,
		},
		Inference: InferenceConfig{
			Threshold: 0.5,
		},
		HTTP: HTTPConfig{
			Addr:           ":8501",
			MaxUploadMB:    10,
			SessionTTL:     12 * time.Hour,
			MaxSessions:    1024,
			HistoryDisplay: 5,
		},
		Pipeline: PipelineConfig{
			Journal: filepath.Join(root, "pipeline.db"),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load читает .env, YAML-файл и переменные окружения. Пустой path означает
// CTSCAN_CONFIG или DefaultPath; отсутствующий файл не ошибка.
func Load(path string) (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CTSCAN_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// сначала корень: от него зависят умолчания путей, которые файл может не задать
		var root struct {
			ArtifactsRoot string `yaml:"artifacts_root"`
		}
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if root.ArtifactsRoot != "" {
			cfg = defaultsAt(root.ArtifactsRoot)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if cfg.Inference.ModelPath == "" {
		cfg.Inference.ModelPath = cfg.Training.TrainedModelPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("CTSCAN_SOURCE_URL"); v != "" {
		c.DataIngestion.SourceURL = v
	}
	if v := os.Getenv("CTSCAN_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("CTSCAN_MODEL_PATH"); v != "" {
		c.Inference.ModelPath = v
	}
	if v := os.Getenv("CTSCAN_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	var errs []error
	required := map[string]string{
		"data_ingestion.source_url":          c.DataIngestion.SourceURL,
		"data_ingestion.local_data_file":     c.DataIngestion.LocalDataFile,
		"data_ingestion.unzip_dir":           c.DataIngestion.UnzipDir,
		"prepare_base_model.base_model_path": c.PrepareBaseModel.BaseModelPath,
		"training.data_dir":                  c.Training.DataDir,
		"training.trained_model_path":        c.Training.TrainedModelPath,
		"training.positive_class":            c.Training.PositiveClass,
	}
	for key, v := range required {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	switch c.PrepareBaseModel.Backbone {
	case BackbonePooling:
		if c.Params.PoolingGrid <= 0 || c.Params.PoolingGrid > c.Params.ImageSize {
			errs = append(errs, fmt.Errorf("params.pooling_grid must be in 1..image_size, got %d", c.Params.PoolingGrid))
		}
	case BackboneONNX:
		if c.PrepareBaseModel.BackboneSource == "" {
			errs = append(errs, errors.New("prepare_base_model.backbone_source is required for onnx backbone"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backbone %q", c.PrepareBaseModel.Backbone))
	}

	p := c.Params
	if p.ImageSize <= 0 {
		errs = append(errs, fmt.Errorf("params.image_size must be positive, got %d", p.ImageSize))
	}
	if p.Epochs <= 0 {
		errs = append(errs, fmt.Errorf("params.epochs must be positive, got %d", p.Epochs))
	}
	if p.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("params.batch_size must be positive, got %d", p.BatchSize))
	}
	if p.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("params.learning_rate must be positive, got %v", p.LearningRate))
	}
	if p.ValidationSplit < 0 || p.ValidationSplit >= 1 {
		errs = append(errs, fmt.Errorf("params.validation_split must be in [0,1), got %v", p.ValidationSplit))
	}
	if t := c.Inference.Threshold; t <= 0 || t >= 1 {
		errs = append(errs, fmt.Errorf("inference.threshold must be in (0,1), got %v", t))
	}
	if c.HTTP.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("http.max_upload_mb must be positive, got %d", c.HTTP.MaxUploadMB))
	}
	if c.HTTP.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("http.max_sessions must be positive, got %d", c.HTTP.MaxSessions))
	}

	return errors.Join(errs...)
}
