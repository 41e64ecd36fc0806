package middleware

import (
	"net/http"

	"github.com/mmeshcher/rentportal/internal/guard"
	"github.com/mmeshcher/rentportal/internal/model"
	"github.com/mmeshcher/rentportal/internal/session"
)

// RequireRole пропускает запрос в раздел только для сессии с нужной ролью.
// Пустая роль допускает любую аутентифицированную сессию.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				s = session.Anonymous()
			}

			decision := guard.Authorize(s.State(), role)
			switch decision.Outcome {
			case guard.Loading:
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"loading"}`))
			case guard.Redirect:
				http.Redirect(w, r, decision.Location, http.StatusFound)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
