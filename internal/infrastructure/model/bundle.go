package model

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"ctscan/config"
	"ctscan/internal/infrastructure/vision"
)

const (
	BundleFormat  = "ctscan-model"
	BundleVersion = 1

	manifestEntry = "manifest.json"
	headEntry     = "head.json"
	backboneEntry = "backbone.onnx"
)

// ErrArtifactNotFound файла артефакта нет по указанному пути
var ErrArtifactNotFound = errors.New("model artifact not found")

// BackboneSpec описание backbone внутри артефакта
type BackboneSpec struct {
	Kind       string `json:"kind"`
	Grid       int    `json:"grid,omitempty"`
	FeatureDim int    `json:"feature_dim"`
}

// TrainingMetrics итог обучения, сохраняется в манифест
type TrainingMetrics struct {
	Epochs              int       `json:"epochs"`
	TrainSamples        int       `json:"train_samples"`
	ValidationSamples   int       `json:"validation_samples"`
	FinalLoss           float64   `json:"final_loss"`
	ValidationAccuracy  float64   `json:"validation_accuracy"`
	ValidationThreshold float64   `json:"validation_threshold"`
	TrainedAt           time.Time `json:"trained_at"`
}

// Manifest описание артефакта
type Manifest struct {
	Format        string           `json:"format"`
	Version       int              `json:"version"`
	InputSize     int              `json:"input_size"`
	Backbone      BackboneSpec     `json:"backbone"`
	PositiveClass string           `json:"positive_class"`
	Classes       []string         `json:"classes,omitempty"`
	Trained       bool             `json:"trained"`
	Metrics       *TrainingMetrics `json:"metrics,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Architecture структурная часть манифеста без времени и метрик
type Architecture struct {
	InputSize int
	Backbone  BackboneSpec
	HeadDim   int
}

// Bundle самодостаточный артефакт модели: backbone + голова
type Bundle struct {
	Manifest      Manifest
	Head          Head
	BackboneModel []byte // байты ONNX, только для kind=onnx
}

// Architecture возвращает структуру сети
func (b *Bundle) Architecture() Architecture {
	return Architecture{
		InputSize: b.Manifest.InputSize,
		Backbone:  b.Manifest.Backbone,
		HeadDim:   b.Head.Dim(),
	}
}

func (b *Bundle) validate() error {
	m := b.Manifest
	if m.Format != BundleFormat {
		return fmt.Errorf("unexpected bundle format %q", m.Format)
	}
	if m.Version != BundleVersion {
		return fmt.Errorf("unsupported bundle version %d", m.Version)
	}
	if m.InputSize <= 0 {
		return fmt.Errorf("invalid input size %d", m.InputSize)
	}
	if err := b.Head.validate(); err != nil {
		return err
	}
	if b.Head.Dim() != m.Backbone.FeatureDim {
		return fmt.Errorf("head dim %d does not match backbone feature dim %d", b.Head.Dim(), m.Backbone.FeatureDim)
	}
	switch m.Backbone.Kind {
	case config.BackbonePooling:
		if m.Backbone.Grid <= 0 || m.Backbone.Grid*m.Backbone.Grid*3 != m.Backbone.FeatureDim {
			return fmt.Errorf("invalid pooling backbone %+v", m.Backbone)
		}
	case config.BackboneONNX:
		if len(b.BackboneModel) == 0 {
			return errors.New("onnx backbone is missing from bundle")
		}
	default:
		return fmt.Errorf("unknown backbone kind %q", m.Backbone.Kind)
	}
	return nil
}

// OpenBackbone создаёт экстрактор признаков по описанию из манифеста
func (b *Bundle) OpenBackbone() (vision.Backbone, error) {
	spec := b.Manifest.Backbone
	switch spec.Kind {
	case config.BackbonePooling:
		return vision.NewPoolingBackbone(spec.Grid)
	case config.BackboneONNX:
		return vision.NewDNNBackbone(b.BackboneModel, b.Manifest.InputSize, spec.FeatureDim)
	default:
		return nil, fmt.Errorf("unknown backbone kind %q", spec.Kind)
	}
}

// WriteBundle атомарно записывает артефакт: сначала во временный файл рядом, затем rename.
// Неудачная запись не оставляет файла по пути path.
func WriteBundle(path string, b *Bundle) (err error) {
	if err := b.validate(); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	if err := writeJSON(zw, manifestEntry, b.Manifest); err != nil {
		return err
	}
	if err := writeJSON(zw, headEntry, b.Head); err != nil {
		return err
	}
	if len(b.BackboneModel) > 0 {
		w, err := zw.Create(backboneEntry)
		if err != nil {
			return fmt.Errorf("write %s: %w", backboneEntry, err)
		}
		if _, err := w.Write(b.BackboneModel); err != nil {
			return fmt.Errorf("write %s: %w", backboneEntry, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move artifact into place: %w", err)
	}
	return nil
}

func writeJSON(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

// ReadBundle читает и проверяет артефакт
func ReadBundle(path string) (*Bundle, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrArtifactNotFound, err)
		}
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer zr.Close()

	var (
		b                    Bundle
		hasManifest, hasHead bool
	)
	for _, f := range zr.File {
		switch f.Name {
		case manifestEntry:
			if err := readJSON(f, &b.Manifest); err != nil {
				return nil, err
			}
			hasManifest = true
		case headEntry:
			if err := readJSON(f, &b.Head); err != nil {
				return nil, err
			}
			hasHead = true
		case backboneEntry:
			data, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			b.BackboneModel = data
		}
	}
	if !hasManifest || !hasHead {
		return nil, fmt.Errorf("artifact %s is incomplete (manifest=%t head=%t)", path, hasManifest, hasHead)
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return &b, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

func readJSON(f *zip.File, v any) error {
	data, err := readEntry(f)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return nil
}
