package app

import (
	"context"
	"errors"
	"time"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

type SessionService struct {
	repo  port.SessionRepository
	newID func() string
	now   func() time.Time
}

// NewSessionService создаёт сервис сессий; newID генерирует идентификаторы новых сессий
func NewSessionService(repo port.SessionRepository, newID func() string) *SessionService {
	return &SessionService{repo: repo, newID: newID, now: time.Now}
}

// Start открывает новую сессию с пустой историей
func (s *SessionService) Start(ctx context.Context) (*entity.Session, error) {
	session := entity.NewSession(s.newID(), s.now())
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*entity.Session, error) {
	return s.repo.Get(ctx, id)
}

// Open возвращает сессию с заданным ID, создаёт её если не найдена
func (s *SessionService) Open(ctx context.Context, id string) (*entity.Session, error) {
	session, err := s.repo.Get(ctx, id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, port.ErrSessionNotFound) {
		return nil, err
	}

	session = entity.NewSession(id, s.now())
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) Save(ctx context.Context, session *entity.Session) error {
	return s.repo.Save(ctx, session)
}

// End завершает сессию, её история теряется
func (s *SessionService) End(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
