package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

// ErrInvalidImage загрузка не является поддерживаемым изображением.
// Ошибка восстановимая: пользователь может загрузить другой файл.
var ErrInvalidImage = errors.New("invalid image")

type AnalysisService struct {
	sessions *SessionService
	model    *ModelHandle
	images   port.ImagePreprocessor
	policy   entity.VerdictPolicy
	now      func() time.Time
	log      *zap.Logger
}

// AnalysisOutput результат одного анализа снимка
type AnalysisOutput struct {
	Score   entity.RiskScore
	Verdict entity.Verdict
	Record  entity.HistoryRecord
	Scan    entity.ScanInfo
}

// NewAnalysisService создаёт сервис анализа снимков
func NewAnalysisService(sessions *SessionService, model *ModelHandle, images port.ImagePreprocessor, policy entity.VerdictPolicy, log *zap.Logger) *AnalysisService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalysisService{
		sessions: sessions,
		model:    model,
		images:   images,
		policy:   policy,
		now:      time.Now,
		log:      log,
	}
}

// Model handle модели, которой пользуется сервис
func (s *AnalysisService) Model() *ModelHandle {
	return s.model
}

// Analyze оценивает один снимок и возвращает новую историю с добавленной записью.
// При любой ошибке история возвращается без изменений.
func (s *AnalysisService) Analyze(ctx context.Context, history entity.History, upload entity.Upload) (*AnalysisOutput, entity.History, error) {
	classifier, err := s.model.Classifier()
	if err != nil {
		return nil, history, err
	}

	tensor, scan, err := s.images.Prepare(upload)
	if err != nil {
		s.log.Info("rejected upload", zap.String("file", upload.Name), zap.Error(err))
		return nil, history, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	score, err := classifier.Predict(ctx, tensor)
	if err != nil {
		return nil, history, fmt.Errorf("predict %s: %w", upload.Name, err)
	}

	verdict := s.policy.Classify(score)
	record := entity.HistoryRecord{
		Time:       s.now(),
		Verdict:    verdict,
		Confidence: score.Percent(),
		Score:      score,
		FileName:   upload.Name,
	}

	s.log.Info("analysis complete",
		zap.String("file", upload.Name),
		zap.Float64("score", float64(score)),
		zap.String("verdict", string(verdict)),
	)

	return &AnalysisOutput{
		Score:   score,
		Verdict: verdict,
		Record:  record,
		Scan:    scan,
	}, history.Append(record), nil
}

// AnalyzeInSession анализирует снимок в контексте сохранённой сессии и сохраняет её историю
func (s *AnalysisService) AnalyzeInSession(ctx context.Context, sessionID string, upload entity.Upload) (*AnalysisOutput, *entity.Session, error) {
	session, err := s.sessions.Open(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	out, history, err := s.Analyze(ctx, session.History, upload)
	if err != nil {
		return nil, session, err
	}

	session = session.WithHistory(history)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, nil, err
	}
	return out, session, nil
}
