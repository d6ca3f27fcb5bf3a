package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"ctscan/internal/infrastructure/vision"
)

// ErrDatasetInvalid структура каталога датасета не подходит для обучения
var ErrDatasetInvalid = errors.New("invalid dataset")

// Sample один снимок датасета
type Sample struct {
	Path  string
	Class string
	Label float64 // 1 для положительного класса
}

// Dataset снимки, разложенные по каталогам классов: root/<class>/**/*.jpg
type Dataset struct {
	Classes []string
	Samples []Sample
}

// LoadDataset обходит root. Нужны минимум два класса, positiveClass среди них,
// в каждом классе хотя бы один снимок. Файлы не-изображения пропускаются.
func LoadDataset(root, positiveClass string) (*Dataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrDatasetInvalid, root, err)
	}

	ds := &Dataset{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		class := e.Name()
		var found int
		err := filepath.WalkDir(filepath.Join(root, class), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !vision.IsImageFile(path) {
				return nil
			}
			var label float64
			if class == positiveClass {
				label = 1
			}
			ds.Samples = append(ds.Samples, Sample{Path: path, Class: class, Label: label})
			found++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk class %s: %w", class, err)
		}
		if found == 0 {
			return nil, fmt.Errorf("%w: class %q has no images", ErrDatasetInvalid, class)
		}
		ds.Classes = append(ds.Classes, class)
	}

	sort.Strings(ds.Classes)
	if len(ds.Classes) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 classes in %s, found %v", ErrDatasetInvalid, root, ds.Classes)
	}
	if idx := sort.SearchStrings(ds.Classes, positiveClass); idx == len(ds.Classes) || ds.Classes[idx] != positiveClass {
		return nil, fmt.Errorf("%w: positive class %q not found in %v", ErrDatasetInvalid, positiveClass, ds.Classes)
	}
	return ds, nil
}
