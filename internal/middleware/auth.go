// Package middleware содержит HTTP middleware портала аренды.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/rentportal/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

const (
	sessionCookieName = "portal_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// SessionMiddleware восстанавливает сессию из подписанного cookie.
// Cookie хранит идентификатор сессии и токен доступа к API.
type SessionMiddleware struct {
	secretKey []byte
	sessions  *session.Manager
}

// NewSessionMiddleware создаёт middleware с указанным секретным ключом подписи.
func NewSessionMiddleware(secret string, sessions *session.Manager) *SessionMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &SessionMiddleware{
		secretKey: key,
		sessions:  sessions,
	}
}

// Middleware кладёт сессию запроса в контекст. Запрос без cookie получает
// анонимную сессию; cookie с отклонённым токеном удаляется.
func (a *SessionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session.Anonymous())))
			return
		}

		id, token, ok := a.parseCookie(cookie.Value)
		if !ok {
			a.ClearSessionCookie(w)
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session.Anonymous())))
			return
		}

		s := a.sessions.Restore(r.Context(), id, token)
		state := s.State()
		if !state.Loading && !state.IsAuthenticated() {
			a.ClearSessionCookie(w)
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
	})
}

// SetSessionCookie устанавливает cookie для аутентифицированной сессии.
func (a *SessionMiddleware) SetSessionCookie(w http.ResponseWriter, s *session.Session) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    a.sign(s.ID(), s.Token()),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

// ClearSessionCookie удаляет cookie сессии.
func (a *SessionMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *SessionMiddleware) sign(id, token string) string {
	payload := id + "." + base64.RawURLEncoding.EncodeToString([]byte(token))
	return payload + "." + a.signature(payload)
}

func (a *SessionMiddleware) signature(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *SessionMiddleware) parseCookie(cookieValue string) (string, string, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 3 {
		return "", "", false
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(a.signature(payload))) {
		return "", "", false
	}

	if _, err := uuid.Parse(parts[0]); err != nil {
		return "", "", false
	}

	token, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(token) == 0 {
		return "", "", false
	}

	return parts[0], string(token), true
}

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext извлекает сессию из контекста запроса.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok
}
