package entity

import (
	"fmt"
	"math"
)

// Verdict бинарный итог классификации
type Verdict string

const (
	VerdictPositive Verdict = "Positive" // обнаружены признаки малигнизации
	VerdictNegative Verdict = "Negative" // признаков не обнаружено
)

// DefaultThreshold порог по умолчанию. Не откалиброван клинически.
const DefaultThreshold = 0.5

// VerdictPolicy переводит оценку риска в вердикт
type VerdictPolicy struct {
	Threshold float64
}

// NewVerdictPolicy создаёт политику с порогом из (0,1)
func NewVerdictPolicy(threshold float64) (VerdictPolicy, error) {
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return VerdictPolicy{}, fmt.Errorf("threshold must be in (0,1), got %v", threshold)
	}
	return VerdictPolicy{Threshold: threshold}, nil
}

// Classify возвращает Positive только при score строго больше порога,
// score == порог даёт Negative.
func (p VerdictPolicy) Classify(score RiskScore) Verdict {
	if float64(score) > p.Threshold {
		return VerdictPositive
	}
	return VerdictNegative
}

// Headline заголовок вердикта для экрана
func (v Verdict) Headline() string {
	if v == VerdictPositive {
		return "POSITIVE: Adenocarcinoma Detected"
	}
	return "NEGATIVE: No Malignancy Detected"
}

// RiskScore оценка вероятности малигнизации в [0,1]
type RiskScore float64

// NewRiskScore проверяет значение модели и прижимает его к [0,1]
func NewRiskScore(v float64) (RiskScore, error) {
	if math.IsNaN(v) {
		return 0, fmt.Errorf("risk score is NaN")
	}
	return RiskScore(math.Min(1, math.Max(0, v))), nil
}

// Percent форматирует оценку как "82.0%"
func (s RiskScore) Percent() string {
	return fmt.Sprintf("%.1f%%", float64(s)*100)
}
