package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/rentportal/internal/model"
)

type initiateResponse struct {
	PaymentID string `json:"paymentId"`
	Data      *struct {
		PaymentID string `json:"paymentId"`
	} `json:"data"`
}

// InitiateMpesaPayment запускает платёж M-Pesa и возвращает идентификатор платежа.
// Пустой идентификатор без ошибки означает, что API его не выдал.
func (c *Client) InitiateMpesaPayment(ctx context.Context, token string, req model.InitiateRequest) (string, error) {
	var resp initiateResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/payments/mpesa/initiate",
		token:  token,
		body:   req,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Data != nil && resp.Data.PaymentID != "" {
		return resp.Data.PaymentID, nil
	}
	return resp.PaymentID, nil
}

type statusResponse struct {
	PaymentID   string          `json:"paymentId"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	CompletedAt string          `json:"completedAt"`
	Date        string          `json:"date"`
}

// MpesaPaymentStatus запрашивает текущий статус платежа M-Pesa.
// Неизвестный статус возвращается как пустой Status.
func (c *Client) MpesaPaymentStatus(ctx context.Context, token, paymentID string) (*model.StatusSnapshot, error) {
	var resp statusResponse
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/payments/mpesa/status/" + url.PathEscape(paymentID),
		token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}

	status, _ := model.ParsePaymentStatus(resp.Status)
	completedAt := parseTime(resp.CompletedAt)
	if completedAt == nil {
		completedAt = parseTime(resp.Date)
	}

	return &model.StatusSnapshot{
		PaymentID:   resp.PaymentID,
		Status:      status,
		Amount:      resp.Amount,
		Reference:   resp.Reference,
		CompletedAt: completedAt,
	}, nil
}

// PaymentHistory возвращает историю платежей арендатора.
func (c *Client) PaymentHistory(ctx context.Context, token string, filter model.PaymentFilter) ([]model.Payment, error) {
	q := url.Values{}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Sort != "" {
		q.Set("sort", filter.Sort)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}

	var payments []model.Payment
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/payments",
		query:     q,
		token:     token,
		retryable: true,
	}, &payments)
	if err != nil {
		return nil, err
	}

	for i := range payments {
		if payments[i].PaymentMethod == "" {
			payments[i].PaymentMethod = "M-Pesa"
		}
		if payments[i].ReferenceNumber == "" {
			payments[i].ReferenceNumber = "-"
		}
	}
	return payments, nil
}

// LandlordPayments возвращает платежи по объектам арендодателя.
func (c *Client) LandlordPayments(ctx context.Context, token string, filter model.PaymentFilter) ([]model.Payment, error) {
	q := url.Values{}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.StartDate != "" {
		q.Set("startDate", filter.StartDate)
	}
	if filter.EndDate != "" {
		q.Set("endDate", filter.EndDate)
	}

	var payments []model.Payment
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/landlord/payments",
		query:     q,
		token:     token,
		retryable: true,
	}, &payments)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
