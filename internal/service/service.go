// Package service реализует бизнес-логику портала аренды поверх удалённого API.
package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/rentportal/internal/apiclient"
	"github.com/mmeshcher/rentportal/internal/model"
	"github.com/mmeshcher/rentportal/internal/payment"
	"github.com/mmeshcher/rentportal/internal/session"
)

// ErrNotAuthenticated возвращается для операций, требующих пользователя в сессии.
var ErrNotAuthenticated = errors.New("session is not authenticated")

const (
	dashboardLimit = 5
	// tenantPaymentsLimit — число платежей на панели арендатора.
	tenantPaymentsLimit = 2
	attemptsLimit  = 20
	journalTimeout = 5 * time.Second
)

// API описывает операции удалённого API платформы, используемые сервисом.
type API interface {
	session.Authenticator
	InitiateMpesaPayment(ctx context.Context, token string, req model.InitiateRequest) (string, error)
	MpesaPaymentStatus(ctx context.Context, token, paymentID string) (*model.StatusSnapshot, error)
	PaymentHistory(ctx context.Context, token string, filter model.PaymentFilter) ([]model.Payment, error)
	LandlordPayments(ctx context.Context, token string, filter model.PaymentFilter) ([]model.Payment, error)
	Properties(ctx context.Context, filters url.Values) ([]model.Property, error)
	Property(ctx context.Context, id int64) (*model.Property, error)
	SubmitComplaint(ctx context.Context, token string, complaint model.NewComplaint) error
	Complaints(ctx context.Context, token string, landlord bool, filter model.ComplaintFilter) ([]model.Complaint, error)
	UpdateComplaint(ctx context.Context, token string, id int64, status model.ComplaintStatus) error
	DashboardStats(ctx context.Context, token string) (map[string]any, error)
	RecentPayments(ctx context.Context, token string, limit int) ([]model.Payment, error)
	RecentComplaints(ctx context.Context, token string, limit int) ([]model.Complaint, error)

	Register(ctx context.Context, reg model.Registration) error
	LandlordProperties(ctx context.Context, token string, filters url.Values) ([]model.Property, error)
	CreateProperty(ctx context.Context, token string, upload model.PropertyUpload) error
	UpdateProperty(ctx context.Context, token string, id int64, upload model.PropertyUpload) error
	DeleteProperty(ctx context.Context, token string, id int64) error
	LandlordTenants(ctx context.Context, token string) ([]model.Tenant, error)
	AddTenant(ctx context.Context, token string, tenant model.NewTenant) error
	RemoveTenant(ctx context.Context, token string, id int64) error
	TenantDetails(ctx context.Context, token string) (*model.TenantDetails, error)
	Report(ctx context.Context, token string, kind model.ReportKind, period model.ReportRange) ([]map[string]any, error)
}

// Journal описывает журнал попыток оплаты. Может отсутствовать.
type Journal interface {
	Close() error
	RecordAttempt(ctx context.Context, userID int64, attempt model.PaymentAttempt) error
	AttemptsByUser(ctx context.Context, userID int64, limit int) ([]model.PaymentAttempt, error)
}

// Options задаёт параметры сервиса.
type Options struct {
	Clock        clockwork.Clock
	Logger       *zap.Logger
	PollInterval time.Duration
	MaxPolls     int
}

// PaymentState — текущая попытка оплаты сессии и последнее уведомление по ней.
type PaymentState struct {
	Attempt model.PaymentAttempt
	Notice  payment.Notice
}

// TenantDashboard содержит данные панели арендатора. Details отсутствует,
// если API не вернул сведения об аренде.
type TenantDashboard struct {
	Details    *model.TenantDetails
	Payments   []model.Payment
	Complaints []model.Complaint
}

// LandlordDashboard содержит данные панели арендодателя.
type LandlordDashboard struct {
	Stats      map[string]any
	Payments   []model.Payment
	Complaints []model.Complaint
}

// Service содержит бизнес-логику портала аренды.
type Service struct {
	api      API
	journal  Journal
	sessions *session.Manager
	clock    clockwork.Clock
	logger   *zap.Logger
	interval time.Duration
	maxPolls int

	mu        sync.Mutex
	workflows map[string]*payment.Workflow
	notices   map[string]payment.Notice
}

// NewService создаёт сервис. journal может быть nil, тогда попытки не журналируются.
func NewService(api API, journal Journal, sessions *session.Manager, opts Options) *Service {
	s := &Service{
		api:       api,
		journal:   journal,
		sessions:  sessions,
		clock:     opts.Clock,
		logger:    opts.Logger,
		interval:  opts.PollInterval,
		maxPolls:  opts.MaxPolls,
		workflows: make(map[string]*payment.Workflow),
		notices:   make(map[string]payment.Notice),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Close останавливает все опросы, дожидается их завершения и закрывает журнал.
func (s *Service) Close() error {
	s.mu.Lock()
	workflows := s.workflows
	s.workflows = make(map[string]*payment.Workflow)
	s.mu.Unlock()

	for _, w := range workflows {
		w.Close()
	}
	for _, w := range workflows {
		<-w.PollDone()
	}

	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

// Login выполняет вход и создаёт сессию.
func (s *Service) Login(ctx context.Context, email, password string) (*session.Session, error) {
	return s.sessions.Login(ctx, email, password)
}

// Logout завершает сессию и останавливает её опрос статуса платежа.
func (s *Service) Logout(sess *session.Session) {
	s.closeWorkflow(sess.ID())
	s.sessions.Logout(sess.ID())
}

// InitiatePayment запускает платёж M-Pesa от имени арендатора сессии.
func (s *Service) InitiatePayment(ctx context.Context, sess *session.Session, amount decimal.Decimal, phone, description string) (PaymentState, error) {
	w, err := s.workflowFor(sess)
	if err != nil {
		return PaymentState{}, err
	}

	attempt, err := w.Initiate(ctx, amount, phone, description)
	if err != nil {
		return PaymentState{}, err
	}
	return PaymentState{Attempt: attempt, Notice: s.notice(sess.ID())}, nil
}

// PaymentAttempt возвращает текущую попытку оплаты сессии.
func (s *Service) PaymentAttempt(sess *session.Session) (PaymentState, error) {
	w, ok := s.workflow(sess.ID())
	if !ok {
		return PaymentState{}, payment.ErrNoAttempt
	}
	attempt, ok := w.Attempt()
	if !ok {
		return PaymentState{}, payment.ErrNoAttempt
	}
	return PaymentState{Attempt: attempt, Notice: s.notice(sess.ID())}, nil
}

// CheckPayment выполняет ручную проверку статуса. При ошибке состояние
// содержит уведомление о неудачной проверке.
func (s *Service) CheckPayment(ctx context.Context, sess *session.Session) (PaymentState, error) {
	w, ok := s.workflow(sess.ID())
	if !ok {
		return PaymentState{}, payment.ErrNoAttempt
	}

	attempt, notice, err := w.ManualStatusCheck(ctx)
	if notice.Kind != payment.NoticeNone {
		s.setNotice(sess.ID(), notice)
	}
	return PaymentState{Attempt: attempt, Notice: notice}, err
}

// ResetPayment отбрасывает текущую попытку оплаты сессии.
func (s *Service) ResetPayment(sess *session.Session) {
	if w, ok := s.workflow(sess.ID()); ok {
		w.Reset()
	}
	s.mu.Lock()
	delete(s.notices, sess.ID())
	s.mu.Unlock()
}

// PaymentAttempts возвращает журнал попыток оплаты пользователя сессии.
func (s *Service) PaymentAttempts(ctx context.Context, sess *session.Session) ([]model.PaymentAttempt, error) {
	user := sess.State().User
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.AttemptsByUser(ctx, user.ID, attemptsLimit)
}

// PaymentHistory возвращает историю платежей арендатора.
func (s *Service) PaymentHistory(ctx context.Context, sess *session.Session, filter model.PaymentFilter) ([]model.Payment, error) {
	return s.api.PaymentHistory(ctx, sess.Token(), filter)
}

// TenantDashboard собирает сведения об аренде, последние платежи и открытые жалобы арендатора.
func (s *Service) TenantDashboard(ctx context.Context, sess *session.Session) (*TenantDashboard, error) {
	token := sess.Token()
	res := &TenantDashboard{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		details, err := s.api.TenantDetails(ctx, token)
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return err
		}
		if err != nil {
			s.logger.Warn("tenant details unavailable", zap.Error(err))
			return nil
		}
		res.Details = details
		return nil
	})
	g.Go(func() error {
		payments, err := s.api.PaymentHistory(ctx, token, model.PaymentFilter{Limit: tenantPaymentsLimit, Sort: "date:desc"})
		res.Payments = payments
		return err
	})
	g.Go(func() error {
		complaints, err := s.api.Complaints(ctx, token, false, model.ComplaintFilter{
			Statuses: []model.ComplaintStatus{model.ComplaintStatusOpen, model.ComplaintStatusInProgress},
			Limit:    dashboardLimit,
		})
		res.Complaints = complaints
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// LandlordDashboard собирает статистику, последние платежи и жалобы арендодателя.
func (s *Service) LandlordDashboard(ctx context.Context, sess *session.Session) (*LandlordDashboard, error) {
	token := sess.Token()
	res := &LandlordDashboard{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.api.DashboardStats(ctx, token)
		res.Stats = stats
		return err
	})
	g.Go(func() error {
		payments, err := s.api.RecentPayments(ctx, token, dashboardLimit)
		res.Payments = payments
		return err
	})
	g.Go(func() error {
		complaints, err := s.api.RecentComplaints(ctx, token, dashboardLimit)
		res.Complaints = complaints
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// LandlordPayments возвращает платежи по объектам арендодателя.
func (s *Service) LandlordPayments(ctx context.Context, sess *session.Session, filter model.PaymentFilter) ([]model.Payment, error) {
	return s.api.LandlordPayments(ctx, sess.Token(), filter)
}

// Complaints возвращает жалобы пользователя сессии в зависимости от его роли.
func (s *Service) Complaints(ctx context.Context, sess *session.Session, filter model.ComplaintFilter) ([]model.Complaint, error) {
	user := sess.State().User
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	return s.api.Complaints(ctx, sess.Token(), user.Role == model.RoleLandlord, filter)
}

// SubmitComplaint отправляет жалобу арендатора.
func (s *Service) SubmitComplaint(ctx context.Context, sess *session.Session, complaint model.NewComplaint) error {
	return s.api.SubmitComplaint(ctx, sess.Token(), complaint)
}

// UpdateComplaint меняет статус жалобы.
func (s *Service) UpdateComplaint(ctx context.Context, sess *session.Session, id int64, status model.ComplaintStatus) error {
	return s.api.UpdateComplaint(ctx, sess.Token(), id, status)
}

// Properties возвращает список объектов недвижимости.
func (s *Service) Properties(ctx context.Context, filters url.Values) ([]model.Property, error) {
	return s.api.Properties(ctx, filters)
}

// Property возвращает объект недвижимости по идентификатору.
func (s *Service) Property(ctx context.Context, id int64) (*model.Property, error) {
	return s.api.Property(ctx, id)
}

// Register регистрирует пользователя. Сессия не создаётся.
func (s *Service) Register(ctx context.Context, reg model.Registration) error {
	return s.api.Register(ctx, reg)
}

// LandlordProperties возвращает объекты арендодателя.
func (s *Service) LandlordProperties(ctx context.Context, sess *session.Session, filters url.Values) ([]model.Property, error) {
	return s.api.LandlordProperties(ctx, sess.Token(), filters)
}

// CreateProperty создаёт объект недвижимости.
func (s *Service) CreateProperty(ctx context.Context, sess *session.Session, upload model.PropertyUpload) error {
	return s.api.CreateProperty(ctx, sess.Token(), upload)
}

// UpdateProperty обновляет объект недвижимости.
func (s *Service) UpdateProperty(ctx context.Context, sess *session.Session, id int64, upload model.PropertyUpload) error {
	return s.api.UpdateProperty(ctx, sess.Token(), id, upload)
}

// DeleteProperty удаляет объект недвижимости.
func (s *Service) DeleteProperty(ctx context.Context, sess *session.Session, id int64) error {
	return s.api.DeleteProperty(ctx, sess.Token(), id)
}

// LandlordTenants возвращает арендаторов арендодателя.
func (s *Service) LandlordTenants(ctx context.Context, sess *session.Session) ([]model.Tenant, error) {
	return s.api.LandlordTenants(ctx, sess.Token())
}

// AddTenant добавляет арендатора к объекту арендодателя.
func (s *Service) AddTenant(ctx context.Context, sess *session.Session, tenant model.NewTenant) error {
	return s.api.AddTenant(ctx, sess.Token(), tenant)
}

// RemoveTenant снимает арендатора с объекта.
func (s *Service) RemoveTenant(ctx context.Context, sess *session.Session, id int64) error {
	return s.api.RemoveTenant(ctx, sess.Token(), id)
}

// Report возвращает строки отчёта арендодателя за период.
func (s *Service) Report(ctx context.Context, sess *session.Session, kind model.ReportKind, period model.ReportRange) ([]map[string]any, error) {
	return s.api.Report(ctx, sess.Token(), kind, period)
}

// StartSessionSweeper запускает фоновое удаление сессий, простаивающих дольше ttl.
// Опросы удалённых сессий останавливаются.
func (s *Service) StartSessionSweeper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	period := ttl / 2
	if period > time.Minute {
		period = time.Minute
	}

	go func() {
		ticker := s.clock.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.sweep(ttl)
			}
		}
	}()
}

func (s *Service) sweep(ttl time.Duration) {
	evicted := s.sessions.Sweep(ttl)
	for _, id := range evicted {
		s.closeWorkflow(id)
	}
	if len(evicted) > 0 {
		s.logger.Info("idle sessions evicted", zap.Int("count", len(evicted)))
	}
}

func (s *Service) workflowFor(sess *session.Session) (*payment.Workflow, error) {
	user := sess.State().User
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workflows[sess.ID()]; ok {
		return w, nil
	}

	w := payment.NewWorkflow(sessionGateway{api: s.api, sess: sess}, payment.Options{
		Clock:        s.clock,
		Logger:       s.logger.With(zap.String("session", sess.ID())),
		Observer:     &attemptObserver{svc: s, sessionID: sess.ID(), userID: user.ID},
		PollInterval: s.interval,
		MaxPolls:     s.maxPolls,
	})
	s.workflows[sess.ID()] = w
	return w, nil
}

func (s *Service) workflow(sessionID string) (*payment.Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[sessionID]
	return w, ok
}

func (s *Service) closeWorkflow(sessionID string) {
	s.mu.Lock()
	w, ok := s.workflows[sessionID]
	delete(s.workflows, sessionID)
	delete(s.notices, sessionID)
	s.mu.Unlock()

	if ok {
		w.Close()
	}
}

func (s *Service) notice(sessionID string) payment.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notices[sessionID]
}

func (s *Service) setNotice(sessionID string, n payment.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[sessionID]; ok {
		s.notices[sessionID] = n
	}
}

// sessionGateway привязывает платёжные вызовы API к токену сессии.
type sessionGateway struct {
	api  API
	sess *session.Session
}

func (g sessionGateway) InitiatePayment(ctx context.Context, req model.InitiateRequest) (string, error) {
	return g.api.InitiateMpesaPayment(ctx, g.sess.Token(), req)
}

func (g sessionGateway) PaymentStatus(ctx context.Context, paymentID string) (*model.StatusSnapshot, error) {
	return g.api.MpesaPaymentStatus(ctx, g.sess.Token(), paymentID)
}

type attemptObserver struct {
	svc       *Service
	sessionID string
	userID    int64
}

func (o *attemptObserver) AttemptChanged(attempt model.PaymentAttempt, notice payment.Notice) {
	s := o.svc

	if notice.Kind != payment.NoticeNone {
		s.setNotice(o.sessionID, notice)
		s.logger.Info("payment attempt changed",
			zap.String("session", o.sessionID),
			zap.String("paymentID", attempt.PaymentID),
			zap.String("status", string(attempt.Status)),
			zap.Int("polls", attempt.PollCount),
			zap.String("notice", string(notice.Kind)),
		)
	}

	if s.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := s.journal.RecordAttempt(ctx, o.userID, attempt); err != nil {
		s.logger.Error("record payment attempt error",
			zap.String("paymentID", attempt.PaymentID),
			zap.Error(err),
		)
	}
}
