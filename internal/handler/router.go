package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/rentportal/internal/middleware"
	"github.com/mmeshcher/rentportal/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware портала.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(h.sessions.Middleware)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	r.Get("/properties", h.Properties)
	r.Get("/properties/{id}", h.Property)

	r.Route("/tenant", func(r chi.Router) {
		r.Use(custommiddleware.RequireRole(model.RoleTenant))

		r.Get("/dashboard", h.TenantDashboard)

		r.Post("/pay", h.InitiatePayment)
		r.Get("/pay", h.PaymentAttempt)
		r.Delete("/pay", h.ResetPayment)
		r.Post("/pay/check", h.CheckPayment)
		r.Get("/pay/attempts", h.PaymentAttempts)

		r.Get("/payments", h.PaymentHistory)

		r.Get("/complaints", h.Complaints)
		r.Post("/complaints", h.SubmitComplaint)
	})

	r.Route("/landlord", func(r chi.Router) {
		r.Use(custommiddleware.RequireRole(model.RoleLandlord))

		r.Get("/dashboard", h.LandlordDashboard)
		r.Get("/payments", h.LandlordPayments)
		r.Get("/complaints", h.Complaints)
		r.Put("/complaints/{id}", h.UpdateComplaint)

		r.Get("/properties", h.LandlordProperties)
		r.Post("/properties", h.CreateProperty)
		r.Put("/properties/{id}", h.UpdateProperty)
		r.Delete("/properties/{id}", h.DeleteProperty)

		r.Get("/tenants", h.LandlordTenants)
		r.Post("/tenants", h.AddTenant)
		r.Delete("/tenants/{id}", h.RemoveTenant)

		r.Get("/reports/{kind}", h.Report)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
