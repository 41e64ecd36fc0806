// Package model содержит доменные сущности портала аренды.
package model

import (
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя платформы.
type Role string

const (
	RoleLandlord Role = "landlord"
	RoleTenant   Role = "tenant"
)

// User представляет пользователя, полученного от сервиса аутентификации.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Credentials содержит токен доступа и пользователя, выданные при входе.
type Credentials struct {
	Token string
	User  User
}

// AuthState описывает состояние сессии, которое читает проверка маршрутов.
type AuthState struct {
	Loading bool
	User    *User
}

// IsAuthenticated сообщает, есть ли в сессии пользователь.
func (s AuthState) IsAuthenticated() bool {
	return s.User != nil
}

// PaymentStatus описывает статус платежа M-Pesa.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// ParsePaymentStatus приводит строковый статус внешнего API к PaymentStatus.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch PaymentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentStatusPending:
		return PaymentStatusPending, true
	case PaymentStatusCompleted:
		return PaymentStatusCompleted, true
	case PaymentStatusFailed:
		return PaymentStatusFailed, true
	default:
		return "", false
	}
}

// Terminal сообщает, является ли статус конечным.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// Guidance возвращает пояснение для пользователя по статусу платежа.
func (s PaymentStatus) Guidance() string {
	switch s {
	case PaymentStatusCompleted:
		return "Your rent payment has been processed successfully. You should receive an M-Pesa confirmation SMS shortly."
	case PaymentStatusFailed:
		return "The payment could not be processed. This might be due to insufficient funds, incorrect PIN, or network issues."
	case PaymentStatusPending:
		return "Please check your phone for the M-Pesa payment prompt and enter your PIN to complete the transaction."
	default:
		return "Unable to determine payment status."
	}
}

// InitiateRequest описывает запрос на запуск платежа M-Pesa.
type InitiateRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Phone       string          `json:"phone"`
	Description string          `json:"description,omitempty"`
}

// StatusSnapshot описывает ответ внешнего API о статусе платежа.
type StatusSnapshot struct {
	PaymentID   string
	Status      PaymentStatus
	Amount      decimal.Decimal
	Reference   string
	CompletedAt *time.Time
}

// PaymentAttempt описывает одну попытку оплаты, отслеживаемую порталом.
type PaymentAttempt struct {
	PaymentID     string
	Amount        decimal.Decimal
	Phone         string
	Description   string
	Status        PaymentStatus
	Reference     string
	CompletedAt   *time.Time
	PollCount     int
	PollingHalted bool
	InitiatedAt   time.Time
}

// Payment описывает запись истории платежей.
type Payment struct {
	ID              int64           `json:"id"`
	PaymentDate     string          `json:"payment_date"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentStatus   string          `json:"payment_status"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber string          `json:"reference_number"`
	TenantName      string          `json:"tenant_name,omitempty"`
	PropertyName    string          `json:"property_name,omitempty"`
}

// PaymentFilter задаёт параметры выборки истории платежей.
type PaymentFilter struct {
	Limit     int
	Page      int
	Sort      string
	Status    string
	Search    string
	StartDate string
	EndDate   string
}

// Property описывает объект недвижимости.
type Property struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Location    string          `json:"location"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	Bedrooms    int             `json:"bedrooms,omitempty"`
	Bathrooms   int             `json:"bathrooms,omitempty"`
	Image       string          `json:"image,omitempty"`
	Images      []string        `json:"images,omitempty"`
}

// ComplaintStatus описывает статус жалобы.
type ComplaintStatus string

const (
	ComplaintStatusOpen       ComplaintStatus = "open"
	ComplaintStatusInProgress ComplaintStatus = "in_progress"
	ComplaintStatusResolved   ComplaintStatus = "resolved"
	ComplaintStatusClosed     ComplaintStatus = "closed"
)

// Valid сообщает, известен ли статус жалобы.
func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintStatusOpen, ComplaintStatusInProgress, ComplaintStatusResolved, ComplaintStatusClosed:
		return true
	}
	return false
}

// Complaint описывает жалобу арендатора.
type Complaint struct {
	ID           int64           `json:"id"`
	Subject      string          `json:"subject"`
	Description  string          `json:"description"`
	Category     string          `json:"category,omitempty"`
	Status       ComplaintStatus `json:"status"`
	CreatedAt    string          `json:"created_at,omitempty"`
	TenantName   string          `json:"tenant_name,omitempty"`
	PropertyName string          `json:"property_name,omitempty"`
}

// NewComplaint описывает новую жалобу, отправляемую арендатором.
type NewComplaint struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// ComplaintFilter задаёт параметры выборки жалоб.
type ComplaintFilter struct {
	Statuses []ComplaintStatus
	Category string
	Limit    int
}

// Registration описывает запрос на регистрацию пользователя.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PropertyUpload — форма объекта недвижимости с изображениями, передаваемая API без разбора.
type PropertyUpload struct {
	Body        io.Reader
	ContentType string
}

// PropertyRef — краткая ссылка на объект недвижимости в записи арендатора.
type PropertyRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title,omitempty"`
}

// Tenant описывает арендатора объекта.
type Tenant struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone,omitempty"`
	Status     string          `json:"status,omitempty"`
	RentAmount decimal.Decimal `json:"rent_amount"`
	LeaseStart string          `json:"lease_start,omitempty"`
	LeaseEnd   string          `json:"lease_end,omitempty"`
	Property   *PropertyRef    `json:"property,omitempty"`
}

// NewTenant описывает арендатора, добавляемого арендодателем.
type NewTenant struct {
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone,omitempty"`
	PropertyID int64           `json:"property_id"`
	RentAmount decimal.Decimal `json:"rent_amount"`
	LeaseStart string          `json:"lease_start"`
	LeaseEnd   string          `json:"lease_end"`
}

// TenantDetails — сведения о текущем арендаторе, его объекте и сводке.
type TenantDetails struct {
	Tenant   *Tenant        `json:"tenant"`
	Property *Property      `json:"property"`
	Stats    map[string]any `json:"stats"`
}

// ReportKind описывает вид отчёта арендодателя.
type ReportKind string

const (
	ReportPayments   ReportKind = "payments"
	ReportProperties ReportKind = "properties"
	ReportComplaints ReportKind = "complaints"
)

// Valid сообщает, известен ли вид отчёта.
func (k ReportKind) Valid() bool {
	switch k {
	case ReportPayments, ReportProperties, ReportComplaints:
		return true
	}
	return false
}

// ReportRange задаёт период отчёта в формате 2006-01-02. Пустые границы не ограничивают выборку.
type ReportRange struct {
	StartDate string
	EndDate   string
}
