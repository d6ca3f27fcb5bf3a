package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Head логистическая классификационная голова поверх признаков backbone.
// Признаки стандартизуются по Mean/Scale, затем sigmoid(w·x + b).
type Head struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// FitOptions параметры обучения головы
type FitOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
}

// NewHead создаёт голову размерности dim со случайными малыми весами из seed
func NewHead(dim int, seed int64) Head {
	rng := rand.New(rand.NewSource(seed))
	h := Head{
		Weights: make([]float64, dim),
		Mean:    make([]float64, dim),
		Scale:   make([]float64, dim),
	}
	for i := range h.Weights {
		h.Weights[i] = rng.NormFloat64() * 0.01
		h.Scale[i] = 1
	}
	return h
}

// Dim размерность входа
func (h Head) Dim() int {
	return len(h.Weights)
}

func (h Head) validate() error {
	if len(h.Weights) == 0 {
		return errors.New("head has no weights")
	}
	if len(h.Mean) != len(h.Weights) || len(h.Scale) != len(h.Weights) {
		return fmt.Errorf("head shape mismatch: weights=%d mean=%d scale=%d", len(h.Weights), len(h.Mean), len(h.Scale))
	}
	return nil
}

// Score возвращает вероятность положительного класса
func (h Head) Score(features []float64) (float64, error) {
	if len(features) != len(h.Weights) {
		return 0, fmt.Errorf("feature length %d, head expects %d", len(features), len(h.Weights))
	}
	return sigmoid(h.logit(features, make([]float64, len(features)))), nil
}

// normalize пишет стандартизованные признаки в dst
func (h Head) normalize(dst, features []float64) []float64 {
	floats.SubTo(dst, features, h.Mean)
	floats.Div(dst, h.Scale)
	return dst
}

// logit w·x + b по стандартизованным признакам; buf длины Dim
func (h Head) logit(features, buf []float64) float64 {
	return floats.Dot(h.Weights, h.normalize(buf, features)) + h.Bias
}

// Fit обучает голову мини-батчевым градиентным спуском на log-loss.
// Возвращает средний loss каждой эпохи.
func (h *Head) Fit(x [][]float64, y []float64, opts FitOptions) ([]float64, error) {
	if len(x) == 0 {
		return nil, errors.New("no training samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("samples=%d labels=%d", len(x), len(y))
	}
	if opts.Epochs <= 0 || opts.BatchSize <= 0 || opts.LearningRate <= 0 {
		return nil, fmt.Errorf("invalid fit options %+v", opts)
	}
	for i, row := range x {
		if len(row) != h.Dim() {
			return nil, fmt.Errorf("sample %d has %d features, head expects %d", i, len(row), h.Dim())
		}
	}

	h.standardize(x)

	rng := rand.New(rand.NewSource(opts.Seed))
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	grad := make([]float64, h.Dim())
	buf := make([]float64, h.Dim())
	losses := make([]float64, 0, opts.Epochs)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var total float64
		for start := 0; start < len(order); start += opts.BatchSize {
			end := min(start+opts.BatchSize, len(order))
			clear(grad)
			var gradBias float64

			for _, idx := range order[start:end] {
				p := sigmoid(h.logit(x[idx], buf))
				total += logLoss(p, y[idx])
				diff := p - y[idx]
				// buf уже содержит стандартизованный x[idx]
				floats.AddScaled(grad, diff, buf)
				gradBias += diff
			}

			n := float64(end - start)
			floats.AddScaled(h.Weights, -opts.LearningRate/n, grad)
			h.Bias -= opts.LearningRate * gradBias / n
		}
		losses = append(losses, total/float64(len(x)))
	}
	return losses, nil
}

// standardize считает среднее и стандартное отклонение каждого признака.
// Почти постоянный признак (или одна выборка) получает Scale = 1.
func (h *Head) standardize(x [][]float64) {
	col := make([]float64, len(x))
	for i := range h.Mean {
		for j, row := range x {
			col[j] = row[i]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std < 1e-6 {
			std = 1
		}
		h.Mean[i] = mean
		h.Scale[i] = std
	}
}

// Accuracy доля верных ответов при пороге threshold
func (h Head) Accuracy(x [][]float64, y []float64, threshold float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var correct int
	buf := make([]float64, h.Dim())
	for i, row := range x {
		p := sigmoid(h.logit(row, buf))
		if (p > threshold) == (y[i] > 0.5) {
			correct++
		}
	}
	return float64(correct) / float64(len(x))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func logLoss(p, y float64) float64 {
	const eps = 1e-12
	p = math.Min(1-eps, math.Max(eps, p))
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}
