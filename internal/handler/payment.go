package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/rentportal/internal/model"
	"github.com/mmeshcher/rentportal/internal/payment"
	"github.com/mmeshcher/rentportal/internal/service"
	"github.com/mmeshcher/rentportal/internal/validation"
)

type initiateRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Phone       string          `json:"phone"`
	Description string          `json:"description"`
}

type noticeResponse struct {
	Kind    payment.NoticeKind `json:"kind"`
	Message string             `json:"message"`
	Error   bool               `json:"error"`
}

type attemptResponse struct {
	PaymentID     string          `json:"paymentId"`
	Amount        decimal.Decimal `json:"amount"`
	Phone         string          `json:"phone"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	Guidance      string          `json:"guidance"`
	Reference     string          `json:"reference,omitempty"`
	CompletedAt   string          `json:"completedAt,omitempty"`
	PollCount     int             `json:"pollCount"`
	MaxPolls      int             `json:"maxPolls"`
	Polling       bool            `json:"polling"`
	PollingHalted bool            `json:"pollingHalted"`
	InitiatedAt   string          `json:"initiatedAt"`
	Notice        *noticeResponse `json:"notice,omitempty"`
}

func (h *Handler) attemptResponse(state service.PaymentState) attemptResponse {
	a := state.Attempt
	resp := attemptResponse{
		PaymentID:     a.PaymentID,
		Amount:        a.Amount,
		Phone:         validation.MaskPhone(a.Phone),
		Description:   a.Description,
		Status:        string(a.Status),
		Guidance:      a.Status.Guidance(),
		Reference:     a.Reference,
		PollCount:     a.PollCount,
		MaxPolls:      h.maxPolls,
		Polling:       !a.Status.Terminal() && !a.PollingHalted,
		PollingHalted: a.PollingHalted,
		InitiatedAt:   a.InitiatedAt.Format(time.RFC3339),
	}
	if a.CompletedAt != nil {
		resp.CompletedAt = a.CompletedAt.Format(time.RFC3339)
	}
	if state.Notice.Kind != payment.NoticeNone {
		resp.Notice = &noticeResponse{
			Kind:    state.Notice.Kind,
			Message: state.Notice.Message,
			Error:   state.Notice.IsError(),
		}
	}
	return resp
}

// InitiatePayment запускает платёж M-Pesa и автоматический опрос его статуса.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "")
		return
	}

	state, err := h.service.InitiatePayment(r.Context(), h.session(r), req.Amount, req.Phone, req.Description)
	if err != nil {
		var initErr *payment.InitiationError
		switch {
		case errors.Is(err, validation.ErrInvalidPhone),
			errors.Is(err, validation.ErrAmountTooSmall),
			errors.Is(err, validation.ErrAmountTooLarge):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &initErr):
			writeError(w, http.StatusBadGateway, initErr.Message)
		case errors.Is(err, payment.ErrClosed):
			writeError(w, http.StatusConflict, "")
		default:
			h.apiFailure(w, r, "initiate payment", err)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, h.attemptResponse(state))
}

// PaymentAttempt возвращает текущую попытку оплаты сессии.
func (h *Handler) PaymentAttempt(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.PaymentAttempt(h.session(r))
	if err != nil {
		if errors.Is(err, payment.ErrNoAttempt) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.apiFailure(w, r, "get payment attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, h.attemptResponse(state))
}

// CheckPayment выполняет ручную проверку статуса текущей попытки.
func (h *Handler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.CheckPayment(r.Context(), h.session(r))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNoAttempt):
			writeError(w, http.StatusNotFound, "no active payment")
		case errors.Is(err, payment.ErrStatusCheck):
			h.logger.Warn("manual status check failed", zap.Error(err))
			writeJSON(w, http.StatusBadGateway, h.attemptResponse(state))
		default:
			h.apiFailure(w, r, "check payment", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, h.attemptResponse(state))
}

// ResetPayment отбрасывает текущую попытку, чтобы начать новую.
func (h *Handler) ResetPayment(w http.ResponseWriter, r *http.Request) {
	h.service.ResetPayment(h.session(r))
	w.WriteHeader(http.StatusNoContent)
}

type journalEntryResponse struct {
	PaymentID   string              `json:"paymentId"`
	Amount      decimal.Decimal     `json:"amount"`
	Phone       string              `json:"phone"`
	Status      model.PaymentStatus `json:"status"`
	Reference   string              `json:"reference,omitempty"`
	PollCount   int                 `json:"pollCount"`
	InitiatedAt string              `json:"initiatedAt"`
	CompletedAt string              `json:"completedAt,omitempty"`
}

// PaymentAttempts возвращает журнал попыток оплаты, запущенных через портал.
func (h *Handler) PaymentAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.PaymentAttempts(r.Context(), h.session(r))
	if err != nil {
		h.apiFailure(w, r, "get payment attempts", err)
		return
	}
	if len(attempts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]journalEntryResponse, 0, len(attempts))
	for _, a := range attempts {
		e := journalEntryResponse{
			PaymentID:   a.PaymentID,
			Amount:      a.Amount,
			Phone:       validation.MaskPhone(a.Phone),
			Status:      a.Status,
			Reference:   a.Reference,
			PollCount:   a.PollCount,
			InitiatedAt: a.InitiatedAt.Format(time.RFC3339),
		}
		if a.CompletedAt != nil {
			e.CompletedAt = a.CompletedAt.Format(time.RFC3339)
		}
		resp = append(resp, e)
	}
	writeJSON(w, http.StatusOK, resp)
}
