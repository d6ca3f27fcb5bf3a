package model

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"ctscan/internal/domain/port"
)

// Promoter получатель модели, появившейся после старта
type Promoter interface {
	Available() bool
	Promote(classifier port.Classifier) bool
}

// Watcher следит за каталогом артефакта и один раз подгружает модель,
// когда она появляется. Уже загруженная модель не заменяется.
type Watcher struct {
	path    string
	loader  port.ModelLoader
	target  Promoter
	log     *zap.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher начинает наблюдение за каталогом path сразу, до Run
func NewWatcher(path string, loader port.ModelLoader, target Promoter, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{path: path, loader: loader, target: target, log: log, watcher: fw}, nil
}

// Run блокируется до отмены ctx или до загрузки модели
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if w.target.Available() || w.tryLoad() {
		return nil
	}
	w.log.Info("waiting for model artifact", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if w.tryLoad() {
				return nil
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("model watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) tryLoad() bool {
	classifier, err := w.loader.Load(w.path)
	if err != nil {
		w.log.Debug("model not loadable yet", zap.String("path", w.path), zap.Error(err))
		return false
	}
	if w.target.Promote(classifier) {
		w.log.Info("model loaded", zap.String("path", w.path))
		return true
	}
	// модель уже есть: отвергнутый классификатор держит ресурсы бэкбона
	if c, ok := classifier.(io.Closer); ok {
		if err := c.Close(); err != nil {
			w.log.Debug("close rejected model", zap.Error(err))
		}
	}
	return true
}
