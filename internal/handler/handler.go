// Package handler содержит HTTP-обработчики портала аренды.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/rentportal/internal/apiclient"
	"github.com/mmeshcher/rentportal/internal/guard"
	"github.com/mmeshcher/rentportal/internal/middleware"
	"github.com/mmeshcher/rentportal/internal/model"
	"github.com/mmeshcher/rentportal/internal/service"
	"github.com/mmeshcher/rentportal/internal/session"
	"github.com/mmeshcher/rentportal/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, email, password string) (*session.Session, error)
	Logout(sess *session.Session)

	InitiatePayment(ctx context.Context, sess *session.Session, amount decimal.Decimal, phone, description string) (service.PaymentState, error)
	PaymentAttempt(sess *session.Session) (service.PaymentState, error)
	CheckPayment(ctx context.Context, sess *session.Session) (service.PaymentState, error)
	ResetPayment(sess *session.Session)
	PaymentAttempts(ctx context.Context, sess *session.Session) ([]model.PaymentAttempt, error)
	PaymentHistory(ctx context.Context, sess *session.Session, filter model.PaymentFilter) ([]model.Payment, error)

	TenantDashboard(ctx context.Context, sess *session.Session) (*service.TenantDashboard, error)
	LandlordDashboard(ctx context.Context, sess *session.Session) (*service.LandlordDashboard, error)
	LandlordPayments(ctx context.Context, sess *session.Session, filter model.PaymentFilter) ([]model.Payment, error)

	Complaints(ctx context.Context, sess *session.Session, filter model.ComplaintFilter) ([]model.Complaint, error)
	SubmitComplaint(ctx context.Context, sess *session.Session, complaint model.NewComplaint) error
	UpdateComplaint(ctx context.Context, sess *session.Session, id int64, status model.ComplaintStatus) error

	Properties(ctx context.Context, filters url.Values) ([]model.Property, error)
	Property(ctx context.Context, id int64) (*model.Property, error)

	Register(ctx context.Context, reg model.Registration) error
	LandlordProperties(ctx context.Context, sess *session.Session, filters url.Values) ([]model.Property, error)
	CreateProperty(ctx context.Context, sess *session.Session, upload model.PropertyUpload) error
	UpdateProperty(ctx context.Context, sess *session.Session, id int64, upload model.PropertyUpload) error
	DeleteProperty(ctx context.Context, sess *session.Session, id int64) error
	LandlordTenants(ctx context.Context, sess *session.Session) ([]model.Tenant, error)
	AddTenant(ctx context.Context, sess *session.Session, tenant model.NewTenant) error
	RemoveTenant(ctx context.Context, sess *session.Session, id int64) error
	Report(ctx context.Context, sess *session.Session, kind model.ReportKind, period model.ReportRange) ([]map[string]any, error)
}

// Handler реализует HTTP-обработчики портала аренды.
type Handler struct {
	service  Service
	logger   *zap.Logger
	sessions *middleware.SessionMiddleware
	maxPolls int
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, sessions *middleware.SessionMiddleware, maxPolls int) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		sessions: sessions,
		maxPolls: maxPolls,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// apiFailure переводит ошибку удалённого API в HTTP-ответ.
// Отклонённый API токен завершает сессию портала.
func (h *Handler) apiFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		if sess := h.session(r); sess.ID() != "" {
			h.logger.Info("api rejected session token", zap.String("op", op))
			h.service.Logout(sess)
		}
		h.sessions.ClearSessionCookie(w)
		writeError(w, http.StatusUnauthorized, "")
		return
	}
	if errors.Is(err, service.ErrNotAuthenticated) {
		writeError(w, http.StatusUnauthorized, "")
		return
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			writeError(w, http.StatusNotFound, apiErr.Message)
			return
		case apiErr.StatusCode == http.StatusForbidden:
			writeError(w, http.StatusForbidden, apiErr.Message)
			return
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			writeError(w, http.StatusBadRequest, apiErr.Message)
			return
		}
	}

	h.logger.Error(op+" error", zap.Error(err))
	writeError(w, http.StatusBadGateway, "")
}

func (h *Handler) session(r *http.Request) *session.Session {
	if s, ok := middleware.SessionFromContext(r.Context()); ok {
		return s
	}
	return session.Anonymous()
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

type loginResponse struct {
	User     userResponse `json:"user"`
	Redirect string       `json:"redirect"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Login выполняет вход через API платформы и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			msg := apiErr.Message
			if msg == "" {
				msg = "Invalid email or password"
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "")
		return
	}

	h.sessions.SetSessionCookie(w, sess)

	user := sess.State().User
	writeJSON(w, http.StatusOK, loginResponse{
		User:     *toUserResponse(user),
		Redirect: guard.Landing(user.Role),
	})
}

// Register регистрирует пользователя через API платформы. Вход выполняется отдельно.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name and password are required")
		return
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Register(r.Context(), req); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			writeError(w, http.StatusConflict, apiErr.Message)
			return
		}
		h.apiFailure(w, r, "register user", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Logout завершает сессию и удаляет cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if sess.ID() != "" {
		h.service.Logout(sess)
	}
	h.sessions.ClearSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

type meResponse struct {
	Loading       bool          `json:"loading"`
	Authenticated bool          `json:"authenticated"`
	User          *userResponse `json:"user,omitempty"`
}

// Me возвращает состояние аутентификации текущей сессии.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	state := h.session(r).State()
	writeJSON(w, http.StatusOK, meResponse{
		Loading:       state.Loading,
		Authenticated: state.IsAuthenticated(),
		User:          toUserResponse(state.User),
	})
}

// Properties возвращает список объектов недвижимости. Параметры запроса передаются API как есть.
func (h *Handler) Properties(w http.ResponseWriter, r *http.Request) {
	props, err := h.service.Properties(r.Context(), r.URL.Query())
	if err != nil {
		h.apiFailure(w, r, "get properties", err)
		return
	}
	if len(props) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

// Property возвращает объект недвижимости по идентификатору.
func (h *Handler) Property(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	p, err := h.service.Property(r.Context(), id)
	if err != nil {
		h.apiFailure(w, r, "get property", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type tenantDashboardResponse struct {
	Tenant     *model.Tenant     `json:"tenant"`
	Property   *model.Property   `json:"property"`
	Stats      map[string]any    `json:"stats"`
	Payments   []model.Payment   `json:"payments"`
	Complaints []model.Complaint `json:"complaints"`
}

// TenantDashboard возвращает сведения об аренде, последние платежи и открытые жалобы арендатора.
func (h *Handler) TenantDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.TenantDashboard(r.Context(), h.session(r))
	if err != nil {
		h.apiFailure(w, r, "tenant dashboard", err)
		return
	}
	resp := tenantDashboardResponse{
		Payments:   nonNil(d.Payments),
		Complaints: nonNil(d.Complaints),
	}
	if d.Details != nil {
		resp.Tenant = d.Details.Tenant
		resp.Property = d.Details.Property
		resp.Stats = d.Details.Stats
	}
	writeJSON(w, http.StatusOK, resp)
}

type landlordDashboardResponse struct {
	Stats      map[string]any    `json:"stats"`
	Payments   []model.Payment   `json:"payments"`
	Complaints []model.Complaint `json:"complaints"`
}

// LandlordDashboard возвращает статистику, последние платежи и жалобы арендодателя.
func (h *Handler) LandlordDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.LandlordDashboard(r.Context(), h.session(r))
	if err != nil {
		h.apiFailure(w, r, "landlord dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, landlordDashboardResponse{
		Stats:      d.Stats,
		Payments:   nonNil(d.Payments),
		Complaints: nonNil(d.Complaints),
	})
}

// PaymentHistory возвращает историю платежей арендатора.
func (h *Handler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.PaymentFilter{
		Limit:  queryInt(q, "limit"),
		Sort:   q.Get("sort"),
		Status: q.Get("status"),
	}

	payments, err := h.service.PaymentHistory(r.Context(), h.session(r), filter)
	if err != nil {
		h.apiFailure(w, r, "get payment history", err)
		return
	}
	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// LandlordPayments возвращает платежи по объектам арендодателя.
func (h *Handler) LandlordPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.PaymentFilter{
		Page:      queryInt(q, "page"),
		Limit:     queryInt(q, "limit"),
		Search:    q.Get("search"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	}

	payments, err := h.service.LandlordPayments(r.Context(), h.session(r), filter)
	if err != nil {
		h.apiFailure(w, r, "get landlord payments", err)
		return
	}
	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// Complaints возвращает жалобы текущего пользователя.
func (h *Handler) Complaints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ComplaintFilter{
		Category: q.Get("category"),
		Limit:    queryInt(q, "limit"),
	}
	for _, s := range q["status"] {
		status := model.ComplaintStatus(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid complaint status")
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	complaints, err := h.service.Complaints(r.Context(), h.session(r), filter)
	if err != nil {
		h.apiFailure(w, r, "get complaints", err)
		return
	}
	if len(complaints) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, complaints)
}

// SubmitComplaint отправляет жалобу арендатора.
func (h *Handler) SubmitComplaint(w http.ResponseWriter, r *http.Request) {
	var req model.NewComplaint
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "")
		return
	}

	req.Subject = strings.TrimSpace(req.Subject)
	req.Description = strings.TrimSpace(req.Description)
	if req.Subject == "" || req.Description == "" {
		writeError(w, http.StatusBadRequest, "subject and description are required")
		return
	}

	if err := h.service.SubmitComplaint(r.Context(), h.session(r), req); err != nil {
		h.apiFailure(w, r, "submit complaint", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type complaintStatusRequest struct {
	Status model.ComplaintStatus `json:"status"`
}

// UpdateComplaint меняет статус жалобы по объекту арендодателя.
func (h *Handler) UpdateComplaint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid complaint id")
		return
	}

	var req complaintStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid complaint status")
		return
	}

	if err := h.service.UpdateComplaint(r.Context(), h.session(r), id, req.Status); err != nil {
		h.apiFailure(w, r, "update complaint", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(q url.Values, key string) int {
	v, err := strconv.Atoi(q.Get(key))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
