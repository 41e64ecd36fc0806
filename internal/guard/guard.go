// Package guard решает, пускать ли запрос в раздел портала, требующий роли.
package guard

import "github.com/mmeshcher/rentportal/internal/model"

const (
	SignInPath            = "/login"
	HomePath              = "/"
	LandlordDashboardPath = "/landlord/dashboard"
	TenantDashboardPath   = "/tenant/dashboard"
)

// Outcome описывает результат проверки доступа.
type Outcome int

const (
	// Loading означает, что сессия ещё устанавливается.
	Loading Outcome = iota
	Redirect
	Admit
)

// Decision — решение проверки доступа. Location задан только для Redirect.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Authorize проверяет доступ к разделу. Пустая required означает, что
// достаточно любой аутентифицированной сессии.
func Authorize(state model.AuthState, required model.Role) Decision {
	if state.Loading {
		return Decision{Outcome: Loading}
	}
	if !state.IsAuthenticated() {
		return Decision{Outcome: Redirect, Location: SignInPath}
	}
	if required != "" && state.User.Role != required {
		return Decision{Outcome: Redirect, Location: Landing(state.User.Role)}
	}
	return Decision{Outcome: Admit}
}

// Landing возвращает стартовую страницу для роли.
func Landing(role model.Role) string {
	switch role {
	case model.RoleLandlord:
		return LandlordDashboardPath
	case model.RoleTenant:
		return TenantDashboardPath
	default:
		return HomePath
	}
}
