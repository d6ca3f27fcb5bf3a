package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

// MemorySessionRepository in-memory хранилище сессий. Самые давние сессии
// вытесняются при переполнении, неактивные истекают через ttl.
type MemorySessionRepository struct {
	sessions *expirable.LRU[string, *entity.Session]
}

// NewMemorySessionRepository создаёт хранилище на maxSessions сессий; ttl <= 0 отключает истечение
func NewMemorySessionRepository(maxSessions int, ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: expirable.NewLRU[string, *entity.Session](maxSessions, nil, ttl),
	}
}

// Get возвращает сессию по ID
func (r *MemorySessionRepository) Get(ctx context.Context, id string) (*entity.Session, error) {
	session, ok := r.sessions.Get(id)
	if !ok {
		return nil, port.ErrSessionNotFound
	}
	return session, nil
}

// Save сохраняет состояние сессии и продлевает её жизнь
func (r *MemorySessionRepository) Save(ctx context.Context, session *entity.Session) error {
	r.sessions.Add(session.ID, session)
	return nil
}

// Delete удаляет сессию
func (r *MemorySessionRepository) Delete(ctx context.Context, id string) error {
	r.sessions.Remove(id)
	return nil
}

// Len количество живых сессий
func (r *MemorySessionRepository) Len() int {
	return r.sessions.Len()
}

// Проверка реализации интерфейса
var _ port.SessionRepository = (*MemorySessionRepository)(nil)
