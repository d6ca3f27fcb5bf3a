package entity

import "time"

// Session интерактивный контекст одного пользователя (браузер или чат)
type Session struct {
	ID        string    // идентификатор сессии
	CreatedAt time.Time // момент начала сессии
	History   History   // история анализов этой сессии
}

// NewSession создаёт пустую сессию
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
	}
}

// WithHistory возвращает копию сессии с новой историей
func (s *Session) WithHistory(h History) *Session {
	return &Session{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		History:   h,
	}
}
