// Package payment ведёт одну попытку оплаты M-Pesa от запуска до конечного статуса.
//
// Workflow владеет не более чем одной попыткой. После успешного запуска он
// последовательно опрашивает внешний API с фиксированным интервалом: запрос,
// ожидание ответа, применение, планирование следующего опроса. Опрос
// прекращается на конечном статусе или по исчерпании бюджета опросов, после
// чего статус можно обновить только ручной проверкой.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/rentportal/internal/model"
	"github.com/mmeshcher/rentportal/internal/validation"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxPolls     = 20
)

var (
	// ErrNoAttempt возвращается, если активной попытки оплаты нет.
	ErrNoAttempt = errors.New("no active payment attempt")
	// ErrStatusCheck возвращается, если ручная проверка статуса не дошла до внешнего API.
	ErrStatusCheck = errors.New("failed to check payment status")
	// ErrClosed возвращается после завершения работы Workflow.
	ErrClosed = errors.New("payment workflow closed")

	errMalformedStatus = errors.New("malformed payment status response")
)

const genericInitiationMessage = "Failed to initiate payment"

// InitiationError описывает неудачный запуск платежа. Message предназначено для пользователя.
type InitiationError struct {
	Message string
	Err     error
}

func (e *InitiationError) Error() string {
	if e.Err == nil {
		return "initiate payment: " + e.Message
	}
	return fmt.Sprintf("initiate payment: %s: %v", e.Message, e.Err)
}

func (e *InitiationError) Unwrap() error {
	return e.Err
}

// userMessenger реализуют ошибки внешнего API, несущие сообщение из тела ответа.
type userMessenger interface {
	UserMessage() string
}

// Gateway описывает операции внешнего платёжного API.
type Gateway interface {
	InitiatePayment(ctx context.Context, req model.InitiateRequest) (string, error)
	PaymentStatus(ctx context.Context, paymentID string) (*model.StatusSnapshot, error)
}

// Observer получает каждое изменение попытки вместе с уведомлением для пользователя.
type Observer interface {
	AttemptChanged(attempt model.PaymentAttempt, notice Notice)
}

// Options задаёт параметры Workflow. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	Clock        clockwork.Clock
	Logger       *zap.Logger
	Observer     Observer
	PollInterval time.Duration
	MaxPolls     int
}

// Workflow управляет жизненным циклом одной попытки оплаты.
type Workflow struct {
	gateway  Gateway
	clock    clockwork.Clock
	logger   *zap.Logger
	observer Observer
	interval time.Duration
	maxPolls int

	// lifecycle сериализует Initiate, Reset и Close.
	lifecycle sync.Mutex

	mu      sync.Mutex
	attempt *model.PaymentAttempt
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

// NewWorkflow создаёт Workflow поверх указанного платёжного API.
func NewWorkflow(gateway Gateway, opts Options) *Workflow {
	w := &Workflow{
		gateway:  gateway,
		clock:    opts.Clock,
		logger:   opts.Logger,
		observer: opts.Observer,
		interval: opts.PollInterval,
		maxPolls: opts.MaxPolls,
	}
	if w.clock == nil {
		w.clock = clockwork.NewRealClock()
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.maxPolls <= 0 {
		w.maxPolls = DefaultMaxPolls
	}
	return w
}

// Initiate запускает новый платёж и начинает автоматический опрос его статуса.
// Текущая попытка, если она есть, отбрасывается.
func (w *Workflow) Initiate(ctx context.Context, amount decimal.Decimal, phone, description string) (model.PaymentAttempt, error) {
	if err := validation.ValidateAmount(amount); err != nil {
		return model.PaymentAttempt{}, err
	}
	normalized, err := validation.NormalizePhone(phone)
	if err != nil {
		return model.PaymentAttempt{}, err
	}
	if description == "" {
		description = "Rent payment of KES " + amount.String()
	}

	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return model.PaymentAttempt{}, ErrClosed
	}
	w.discardLocked()
	w.mu.Unlock()

	w.logger.Info("initiating payment",
		zap.String("phone", validation.MaskPhone(normalized)),
		zap.String("amount", amount.String()),
	)

	paymentID, err := w.gateway.InitiatePayment(ctx, model.InitiateRequest{
		Amount:      amount,
		Phone:       normalized,
		Description: description,
	})
	if err != nil {
		msg := genericInitiationMessage
		var um userMessenger
		if errors.As(err, &um) && um.UserMessage() != "" {
			msg = um.UserMessage()
		}
		w.logger.Warn("initiate payment error", zap.Error(err))
		return model.PaymentAttempt{}, &InitiationError{Message: msg, Err: err}
	}
	if paymentID == "" {
		w.logger.Warn("initiate payment returned no payment id")
		return model.PaymentAttempt{}, &InitiationError{Message: genericInitiationMessage + " - no payment ID received"}
	}

	attempt := model.PaymentAttempt{
		PaymentID:   paymentID,
		Amount:      amount,
		Phone:       normalized,
		Description: description,
		Status:      model.PaymentStatusPending,
		InitiatedAt: w.clock.Now(),
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return model.PaymentAttempt{}, ErrClosed
	}
	w.gen++
	gen := w.gen
	stored := attempt
	w.attempt = &stored
	pollCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	done := make(chan struct{})
	w.done = done
	w.mu.Unlock()

	w.notify(attempt, noticeInitiated(normalized))

	go w.poll(pollCtx, gen, done)

	return attempt, nil
}

// ManualStatusCheck выполняет немедленную проверку статуса вне автоматического опроса.
// Проверка не расходует бюджет опросов и доступна после его исчерпания.
func (w *Workflow) ManualStatusCheck(ctx context.Context) (model.PaymentAttempt, Notice, error) {
	w.mu.Lock()
	if w.attempt == nil {
		w.mu.Unlock()
		return model.PaymentAttempt{}, Notice{}, ErrNoAttempt
	}
	current := *w.attempt
	gen := w.gen
	w.mu.Unlock()

	if current.Status.Terminal() {
		return current, statusNotice(current.Status, true), nil
	}

	snap, err := w.gateway.PaymentStatus(ctx, current.PaymentID)
	if err != nil {
		w.logger.Warn("manual payment status check error",
			zap.String("paymentID", current.PaymentID),
			zap.Error(err),
		)
		return current, noticeCheckFailed(), fmt.Errorf("%w: %w", ErrStatusCheck, err)
	}
	if !validSnapshot(snap, current.PaymentID) {
		w.logger.Warn("discarding malformed payment status", zap.String("paymentID", current.PaymentID))
		return current, noticeCheckFailed(), fmt.Errorf("%w: %w", ErrStatusCheck, errMalformedStatus)
	}

	updated, notice, ok := w.apply(gen, snap, true)
	if !ok {
		// Попытку сбросили, пока шёл запрос, либо ответ оказался некорректным.
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.attempt == nil || w.gen != gen {
			return model.PaymentAttempt{}, Notice{}, ErrNoAttempt
		}
		return *w.attempt, statusNotice(w.attempt.Status, true), nil
	}
	return updated, notice, nil
}

// Reset отбрасывает текущую попытку и останавливает опрос.
func (w *Workflow) Reset() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.discardLocked()
}

// Close отбрасывает попытку и запрещает новые запуски.
func (w *Workflow) Close() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.discardLocked()
	w.closed = true
}

// Attempt возвращает копию текущей попытки.
func (w *Workflow) Attempt() (model.PaymentAttempt, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attempt == nil {
		return model.PaymentAttempt{}, false
	}
	return *w.attempt, true
}

// PollDone возвращает канал, который закрывается после остановки текущего цикла опроса.
func (w *Workflow) PollDone() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.done
}

func (w *Workflow) discardLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.attempt = nil
	w.gen++
}

func (w *Workflow) poll(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	for {
		timer := w.clock.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		paymentID, ok := w.nextPoll(gen)
		if !ok {
			return
		}

		snap, err := w.gateway.PaymentStatus(ctx, paymentID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Ошибка транспорта не меняет статус: следующий тик повторит запрос.
			w.logger.Warn("payment status poll error",
				zap.String("paymentID", paymentID),
				zap.Error(err),
			)
			if !w.continueAfterTransportError(gen) {
				return
			}
			continue
		}

		if _, _, ok := w.apply(gen, snap, false); !ok {
			return
		}
		if !w.pollingActive(gen) {
			return
		}
	}
}

// nextPoll расходует единицу бюджета опросов и возвращает идентификатор платежа.
func (w *Workflow) nextPoll(gen uint64) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.attempt == nil || w.gen != gen {
		return "", false
	}
	if w.attempt.Status.Terminal() || w.attempt.PollCount >= w.maxPolls {
		return "", false
	}
	w.attempt.PollCount++
	return w.attempt.PaymentID, true
}

func (w *Workflow) pollingActive(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempt != nil && w.gen == gen &&
		!w.attempt.Status.Terminal() && !w.attempt.PollingHalted
}

func (w *Workflow) continueAfterTransportError(gen uint64) bool {
	w.mu.Lock()
	if w.attempt == nil || w.gen != gen {
		w.mu.Unlock()
		return false
	}
	if w.attempt.PollCount < w.maxPolls {
		w.mu.Unlock()
		return true
	}
	w.attempt.PollingHalted = true
	snapshot := *w.attempt
	w.mu.Unlock()

	w.notify(snapshot, noticePollingHalted())
	return false
}

// validSnapshot отсеивает пустые ответы, ответы о чужом платеже и неизвестные статусы.
func validSnapshot(snap *model.StatusSnapshot, paymentID string) bool {
	return snap != nil && (snap.PaymentID == "" || snap.PaymentID == paymentID) && snap.Status != ""
}

// apply применяет ответ внешнего API к попытке поколения gen.
// Возвращает false, если ответ отброшен.
func (w *Workflow) apply(gen uint64, snap *model.StatusSnapshot, manual bool) (model.PaymentAttempt, Notice, bool) {
	w.mu.Lock()

	if w.attempt == nil || w.gen != gen {
		w.mu.Unlock()
		return model.PaymentAttempt{}, Notice{}, false
	}
	a := w.attempt

	if !validSnapshot(snap, a.PaymentID) {
		w.mu.Unlock()
		w.logger.Warn("discarding malformed payment status", zap.String("paymentID", a.PaymentID))
		// Некорректный ответ трактуется как ошибка транспорта.
		if !manual {
			return model.PaymentAttempt{}, Notice{}, w.continueAfterTransportError(gen)
		}
		return model.PaymentAttempt{}, Notice{}, false
	}

	if a.Status.Terminal() {
		current := *a
		w.mu.Unlock()
		return current, statusNotice(current.Status, manual), true
	}

	if snap.Amount.IsPositive() {
		a.Amount = snap.Amount
	}

	var notice Notice
	switch snap.Status {
	case model.PaymentStatusCompleted:
		a.Status = model.PaymentStatusCompleted
		a.Reference = snap.Reference
		completedAt := w.clock.Now()
		if snap.CompletedAt != nil {
			completedAt = *snap.CompletedAt
		}
		a.CompletedAt = &completedAt
		a.PollingHalted = false
		notice = statusNotice(a.Status, manual)
	case model.PaymentStatusFailed:
		a.Status = model.PaymentStatusFailed
		a.Reference = ""
		a.CompletedAt = nil
		a.PollingHalted = false
		notice = statusNotice(a.Status, manual)
	default:
		if !manual && a.PollCount >= w.maxPolls {
			a.PollingHalted = true
			notice = noticePollingHalted()
		} else {
			notice = statusNotice(a.Status, manual)
		}
	}

	if !a.Status.Terminal() {
		pending := *a
		w.mu.Unlock()
		w.notify(pending, notice)
		return pending, notice, true
	}

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	updated := *a
	w.mu.Unlock()

	w.logger.Info("payment reached terminal status",
		zap.String("paymentID", updated.PaymentID),
		zap.String("status", string(updated.Status)),
		zap.Int("polls", updated.PollCount),
	)
	w.notify(updated, notice)
	return updated, notice, true
}

func (w *Workflow) notify(attempt model.PaymentAttempt, notice Notice) {
	if w.observer != nil {
		w.observer.AttemptChanged(attempt, notice)
	}
}
