package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager хранит активные сессии портала.
type Manager struct {
	auth   Authenticator
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager создаёт хранилище сессий поверх сервиса аутентификации.
func NewManager(auth Authenticator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		auth:     auth,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Login выполняет вход через сервис аутентификации и создаёт новую сессию.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	creds, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s := newSession(uuid.NewString(), "", m.now())
	s.authenticated(creds)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session", s.id),
		zap.Int64("userID", creds.User.ID),
		zap.String("role", string(creds.User.Role)),
	)
	return s, nil
}

// Restore возвращает сессию по идентификатору и сохранённому токену. Новая
// сессия устанавливается в вызывающей горутине; параллельные запросы той же
// сессии видят состояние Loading до завершения проверки.
func (m *Manager) Restore(ctx context.Context, id, token string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.Token() != token {
		ok = false
	}
	if !ok {
		s = newSession(id, token, m.now())
		m.sessions[id] = s
	}
	m.mu.Unlock()

	s.touch(m.now())

	if !ok {
		if err := s.Establish(ctx, m.auth); err != nil {
			m.logger.Info("stored credential rejected", zap.String("session", id), zap.Error(err))
		}
	}
	return s
}

// Get возвращает сессию по идентификатору.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Logout очищает и удаляет сессию.
func (m *Manager) Logout(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Logout()
		m.logger.Info("session closed", zap.String("session", id))
	}
}

// Sweep удаляет сессии, не использовавшиеся дольше idle, и возвращает их идентификаторы.
func (m *Manager) Sweep(idle time.Duration) []string {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len возвращает число активных сессий.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
