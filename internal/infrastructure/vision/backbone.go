package vision

import (
	"errors"
	"fmt"

	"ctscan/internal/domain/entity"
)

// ErrGoCVDisabled сборка без тега gocv не умеет исполнять ONNX-сети
var ErrGoCVDisabled = errors.New("gocv build tag is not enabled")

// Backbone замороженный экстрактор признаков
type Backbone interface {
	// FeatureDim длина вектора признаков
	FeatureDim() int
	// Extract возвращает вектор признаков для тензора
	Extract(tensor entity.ImageTensor) ([]float64, error)
	Close() error
}

// PoolingBackbone усредняет каналы по сетке Grid x Grid. Не требует OpenCV.
type PoolingBackbone struct {
	Grid int
}

// NewPoolingBackbone создаёт backbone с сеткой grid
func NewPoolingBackbone(grid int) (*PoolingBackbone, error) {
	if grid <= 0 {
		return nil, fmt.Errorf("pooling grid must be positive, got %d", grid)
	}
	return &PoolingBackbone{Grid: grid}, nil
}

func (b *PoolingBackbone) FeatureDim() int {
	return b.Grid * b.Grid * 3
}

// Extract считает средние значения каналов в каждой ячейке сетки
func (b *PoolingBackbone) Extract(tensor entity.ImageTensor) ([]float64, error) {
	if tensor.Size < b.Grid {
		return nil, fmt.Errorf("tensor size %d is smaller than pooling grid %d", tensor.Size, b.Grid)
	}
	if len(tensor.Pixels) != tensor.Size*tensor.Size*3 {
		return nil, fmt.Errorf("tensor has %d values, want %d", len(tensor.Pixels), tensor.Size*tensor.Size*3)
	}

	features := make([]float64, 0, b.FeatureDim())
	for cy := 0; cy < b.Grid; cy++ {
		y0, y1 := cy*tensor.Size/b.Grid, (cy+1)*tensor.Size/b.Grid
		for cx := 0; cx < b.Grid; cx++ {
			x0, x1 := cx*tensor.Size/b.Grid, (cx+1)*tensor.Size/b.Grid
			n := float64((y1 - y0) * (x1 - x0))
			for c := 0; c < 3; c++ {
				var sum float64
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						sum += float64(tensor.At(x, y, c))
					}
				}
				features = append(features, sum/n)
			}
		}
	}
	return features, nil
}

func (b *PoolingBackbone) Close() error { return nil }

var _ Backbone = (*PoolingBackbone)(nil)
