package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const attemptJSON = `{"paymentId":"P1","status":"pending","polling":true}`

// echoHandler отвечает телом запроса с заданным типом содержимого и статусом.
func echoHandler(contentType string, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer gr.Close()
		r = gr
	}
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.Handler
		acceptEncoding string
		gzipRequest    bool
		wantStatus     int
		wantEncoding   string
	}{
		{
			name:           "payment json compressed",
			handler:        echoHandler("application/json", http.StatusAccepted),
			acceptEncoding: "gzip, deflate",
			wantStatus:     http.StatusAccepted,
			wantEncoding:   "gzip",
		},
		{
			name:         "client without gzip",
			handler:      echoHandler("application/json", http.StatusOK),
			wantStatus:   http.StatusOK,
			wantEncoding: "",
		},
		{
			name:           "property image passed through",
			handler:        echoHandler("image/png", http.StatusOK),
			acceptEncoding: "gzip",
			wantStatus:     http.StatusOK,
			wantEncoding:   "",
		},
		{
			name:           "error response not compressed",
			handler:        echoHandler("application/json", http.StatusBadGateway),
			acceptEncoding: "gzip",
			wantStatus:     http.StatusBadGateway,
			wantEncoding:   "",
		},
		{
			name:           "compressed request body",
			handler:        echoHandler("application/json", http.StatusOK),
			acceptEncoding: "gzip",
			gzipRequest:    true,
			wantStatus:     http.StatusOK,
			wantEncoding:   "gzip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(attemptJSON)
			if tt.gzipRequest {
				body = bytes.NewReader(gzipBytes(t, attemptJSON))
			}

			req := httptest.NewRequest(http.MethodPost, "/tenant/pay", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(tt.handler).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))
			assert.Equal(t, attemptJSON, readBody(t, res))
		})
	}
}

func TestGzipMiddleware_MalformedRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	called := false
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}

func TestGzipMiddleware_RedirectNotCompressed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tenant/dashboard", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	res := w.Result()
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))
	assert.Empty(t, res.Header.Get("Content-Encoding"))
}
