// Package apiclient предоставляет клиент для удалённого API платформы аренды.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// ErrUnauthorized возвращается, если API отклонил токен доступа.
var ErrUnauthorized = errors.New("unauthorized")

// APIError описывает ответ API с кодом, отличным от 2xx.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.StatusCode, e.Message)
}

// UserMessage возвращает сообщение об ошибке из тела ответа API.
func (e *APIError) UserMessage() string {
	return e.Message
}

// Is позволяет сравнивать ответ 401 с ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client инкапсулирует HTTP-взаимодействие с API платформы.
type Client struct {
	baseURL    string
	httpClient *http.Client
	readClient *retryablehttp.Client
	logger     *zap.Logger
}

// NewClient создаёт клиент API по указанному адресу. Идемпотентные запросы чтения
// повторяются до retryMax раз, запуск платежа и проверка статуса не повторяются.
func NewClient(baseURL string, retryMax int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = 10 * time.Second

	readClient := retryablehttp.NewClient()
	readClient.HTTPClient = cleanhttp.DefaultPooledClient()
	readClient.HTTPClient.Timeout = 10 * time.Second
	readClient.RetryMax = retryMax
	readClient.RetryWaitMin = 200 * time.Millisecond
	readClient.RetryWaitMax = 2 * time.Second
	readClient.Logger = leveledLogger{logger.Sugar()}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		readClient: readClient,
		logger:     logger,
	}
}

// BaseURL возвращает нормализованный адрес API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type call struct {
	method    string
	path      string
	query     url.Values
	token     string
	body      any
	retryable bool

	// raw передаётся как есть с типом contentType, body при этом игнорируется.
	raw         io.Reader
	contentType string
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("api client not configured")
	}

	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case cl.raw != nil:
		body = cl.raw
		contentType = cl.contentType
	case cl.body != nil:
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}

	var resp *http.Response
	if cl.retryable {
		rreq, convErr := retryablehttp.FromRequest(req)
		if convErr != nil {
			return fmt.Errorf("create request: %w", convErr)
		}
		resp, err = c.readClient.Do(rreq)
	} else {
		resp, err = c.httpClient.Do(req)
	}
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		c.logger.Debug("api error response",
			zap.String("method", cl.method),
			zap.String("path", cl.path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage извлекает поле message или error из тела ответа с ошибкой.
func errorMessage(r io.Reader) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

// absoluteURL дополняет относительный путь к файлу адресом API.
func (c *Client) absoluteURL(p string) string {
	if p == "" || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.baseURL + p
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
