package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

type fixedClassifier struct {
	score entity.RiskScore
	err   error
	calls int
}

func (c *fixedClassifier) Predict(ctx context.Context, tensor entity.ImageTensor) (entity.RiskScore, error) {
	c.calls++
	return c.score, c.err
}

type stubLoader struct {
	classifier port.Classifier
	err        error
}

func (l stubLoader) Load(path string) (port.Classifier, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.classifier, nil
}

// extPreprocessor принимает только .jpg/.png с непустыми данными
type extPreprocessor struct{}

func (extPreprocessor) Prepare(upload entity.Upload) (entity.ImageTensor, entity.ScanInfo, error) {
	ext := strings.ToLower(filepath.Ext(upload.Name))
	if ext != ".jpg" && ext != ".png" {
		return entity.ImageTensor{}, entity.ScanInfo{}, fmt.Errorf("unsupported extension %q", ext)
	}
	if len(upload.Data) == 0 {
		return entity.ImageTensor{}, entity.ScanInfo{}, errors.New("cannot decode")
	}
	info := entity.ScanInfo{Name: upload.Name, SizeBytes: len(upload.Data), Width: 512, Height: 512, Format: "jpeg"}
	return entity.NewImageTensor(4), info, nil
}

type recordingStage struct {
	name string
	err  error
	log  *[]string
}

func (s recordingStage) Name() string { return s.name }

func (s recordingStage) Run(ctx context.Context) error {
	*s.log = append(*s.log, s.name)
	return s.err
}

type memoryJournal struct {
	mu      sync.Mutex
	results []entity.StageResult
	err     error
}

func (j *memoryJournal) Record(ctx context.Context, runID string, result entity.StageResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, result)
	return j.err
}

var errMissing = fmt.Errorf("open model: %w", os.ErrNotExist)
