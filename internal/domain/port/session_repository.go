package port

import (
	"context"
	"errors"

	"ctscan/internal/domain/entity"
)

// ErrSessionNotFound сессия не найдена или истекла
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository интерфейс хранилища сессий
type SessionRepository interface {
	// Get возвращает сессию по ID или ErrSessionNotFound
	Get(ctx context.Context, id string) (*entity.Session, error)

	// Save сохраняет состояние сессии
	Save(ctx context.Context, session *entity.Session) error

	// Delete завершает сессию
	Delete(ctx context.Context, id string) error
}
