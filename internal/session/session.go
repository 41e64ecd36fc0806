// Package session хранит состояние аутентификации браузерных сессий портала.
//
// Сессия создаётся при входе или при предъявлении сохранённого токена и
// проходит стадию установления: токен проверяется у сервиса аутентификации.
// Пока проверка идёт, сессия сообщает состояние Loading.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/mmeshcher/rentportal/internal/model"
)

// ErrTokenExpired возвращается, если срок действия сохранённого токена истёк.
var ErrTokenExpired = errors.New("stored token expired")

// Authenticator описывает внешний сервис аутентификации.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.Credentials, error)
	CurrentUser(ctx context.Context, token string) (*model.User, error)
}

// Session — состояние аутентификации одной браузерной сессии.
type Session struct {
	id string

	mu        sync.RWMutex
	token     string
	user      *model.User
	loading   bool
	lastSeen  time.Time
	establish sync.Once
	estErr    error
}

func newSession(id, token string, now time.Time) *Session {
	return &Session{
		id:       id,
		token:    token,
		loading:  token != "",
		lastSeen: now,
	}
}

// Anonymous возвращает установленную сессию без пользователя. Такая сессия не хранится в Manager.
func Anonymous() *Session {
	s := newSession("", "", time.Now())
	s.establish.Do(func() {})
	return s
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string {
	return s.id
}

// Token возвращает токен доступа к API или пустую строку.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// State возвращает текущее состояние аутентификации.
func (s *Session) State() model.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := model.AuthState{Loading: s.loading}
	if s.user != nil {
		u := *s.user
		state.User = &u
	}
	return state
}

// Establish проверяет сохранённый токен у сервиса аутентификации. Проверка
// выполняется один раз; отклонённый токен удаляется из сессии.
func (s *Session) Establish(ctx context.Context, auth Authenticator) error {
	s.establish.Do(func() {
		s.estErr = s.validate(ctx, auth)
	})
	return s.estErr
}

func (s *Session) validate(ctx context.Context, auth Authenticator) error {
	token := s.Token()
	if token == "" {
		s.finish(nil)
		return nil
	}

	if tokenExpired(token, time.Now()) {
		s.finish(nil)
		return ErrTokenExpired
	}

	user, err := auth.CurrentUser(ctx, token)
	if err != nil {
		s.finish(nil)
		return err
	}

	s.finish(user)
	return nil
}

func (s *Session) finish(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	if user == nil {
		s.token = ""
	}
	s.loading = false
}

func (s *Session) authenticated(creds *model.Credentials) {
	s.establish.Do(func() {})

	s.mu.Lock()
	defer s.mu.Unlock()
	u := creds.User
	s.user = &u
	s.token = creds.Token
	s.loading = false
}

// Logout очищает сессию.
func (s *Session) Logout() {
	s.establish.Do(func() {})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.token = ""
	s.loading = false
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// tokenExpired проверяет claim exp, не проверяя подпись: токен выпущен
// внешним API, и окончательное решение остаётся за ним.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return false
	}
	return now.Unix() >= int64(exp)
}
