package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/rentportal/internal/model"
)

func TestInitiateMpesaPayment_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/payments/mpesa/initiate" {
			t.Fatalf("path = %s, want /api/payments/mpesa/initiate", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("authorization = %q, want Bearer tok", got)
		}
		if r.Header.Get(requestIDHeader) == "" {
			t.Fatalf("request id header is missing")
		}

		var req struct {
			Amount      float64 `json:"amount"`
			Phone       string  `json:"phone"`
			Description string  `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Phone != "254712345678" || req.Amount != 1000 {
			t.Fatalf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"paymentId":"P1"},"status":"pending"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id, err := client.InitiateMpesaPayment(ctx, "tok", model.InitiateRequest{
		Amount:      decimal.NewFromInt(1000),
		Phone:       "254712345678",
		Description: "Rent payment of KES 1000",
	})
	if err != nil {
		t.Fatalf("InitiateMpesaPayment error: %v", err)
	}
	if id != "P1" {
		t.Fatalf("payment id = %q, want P1", id)
	}
}

func TestInitiateMpesaPayment_ErrorMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid phone number"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	_, err := client.InitiateMpesaPayment(context.Background(), "tok", model.InitiateRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", apiErr.StatusCode, http.StatusBadRequest)
	}
	if apiErr.UserMessage() != "Invalid phone number" {
		t.Fatalf("message = %q, want Invalid phone number", apiErr.UserMessage())
	}
}

func TestMpesaPaymentStatus_Completed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments/mpesa/status/P1" {
			t.Fatalf("path = %s, want /api/payments/mpesa/status/P1", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"paymentId":"P1","status":"COMPLETED","amount":"1000.00","reference":"MPESA-1","date":"2025-03-01T10:00:00Z"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	snap, err := client.MpesaPaymentStatus(context.Background(), "tok", "P1")
	if err != nil {
		t.Fatalf("MpesaPaymentStatus error: %v", err)
	}
	if snap.Status != model.PaymentStatusCompleted {
		t.Fatalf("status = %q, want completed", snap.Status)
	}
	if snap.Reference != "MPESA-1" {
		t.Fatalf("reference = %q, want MPESA-1", snap.Reference)
	}
	if !snap.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("amount = %s, want 1000", snap.Amount)
	}
	if snap.CompletedAt == nil || !snap.CompletedAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("completedAt = %v", snap.CompletedAt)
	}
}

func TestMpesaPaymentStatus_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 3, nil)

	_, err := client.MpesaPaymentStatus(context.Background(), "tok", "P1")
	if err == nil {
		t.Fatalf("expected error for 502")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestCurrentUser_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	_, err := client.CurrentUser(context.Background(), "expired")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLogin_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Fatalf("path = %s, want /api/auth/login", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok","user":{"id":7,"name":"Amina","email":"amina@example.com","role":"tenant"}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	creds, err := client.Login(context.Background(), "amina@example.com", "secret")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if creds.Token != "tok" || creds.User.ID != 7 || creds.User.Role != model.RoleTenant {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestReads_RetriedOnServerError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Kilimani Court","price":45000,"status":"available","image":"/uploads/1.jpg"},{"id":2,"name":"Riverside","price":"60000","status":"occupied","image":"https://cdn.example.com/2.jpg"}]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 2, nil)

	props, err := client.Properties(context.Background(), url.Values{"status": {"available"}})
	if err != nil {
		t.Fatalf("Properties error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if len(props) != 2 {
		t.Fatalf("len(props) = %d, want 2", len(props))
	}
	if props[0].Image != ts.URL+"/uploads/1.jpg" {
		t.Fatalf("image = %q, want absolute url", props[0].Image)
	}
	if props[1].Image != "https://cdn.example.com/2.jpg" {
		t.Fatalf("image = %q, want unchanged", props[1].Image)
	}
}

func TestPaymentHistory_Defaults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("limit = %q, want 5", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"payment_date":"2025-03-01","amount":"15000","payment_status":"completed"}]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	payments, err := client.PaymentHistory(context.Background(), "tok", model.PaymentFilter{Limit: 5})
	if err != nil {
		t.Fatalf("PaymentHistory error: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("len(payments) = %d, want 1", len(payments))
	}
	if payments[0].PaymentMethod != "M-Pesa" || payments[0].ReferenceNumber != "-" {
		t.Fatalf("unexpected defaults: %+v", payments[0])
	}
}

func TestNewClient_AddsScheme(t *testing.T) {
	client := NewClient("localhost:5000/", 0, nil)
	if client.BaseURL() != "http://localhost:5000" {
		t.Fatalf("base url = %q, want http://localhost:5000", client.BaseURL())
	}
}

func TestRegister_NoToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/register" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Fatalf("authorization = %q, want empty", got)
		}
		var reg model.Registration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if reg.Name != "Amina" || reg.Email != "amina@example.com" || reg.Password != "secret" {
			t.Fatalf("unexpected registration: %+v", reg)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	err := client.Register(context.Background(), model.Registration{Name: "Amina", Email: "amina@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
}

func TestCreateProperty_PassesMultipartThrough(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "Kilimani Court")
	part, _ := mw.CreateFormFile("images", "front.jpg")
	_, _ = part.Write([]byte("jpeg-bytes"))
	_ = mw.Close()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/properties" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("name"); got != "Kilimani Court" {
			t.Fatalf("name = %q, want Kilimani Court", got)
		}
		if files := r.MultipartForm.File["images"]; len(files) != 1 || files[0].Filename != "front.jpg" {
			t.Fatalf("unexpected files: %+v", r.MultipartForm.File)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	err := client.CreateProperty(context.Background(), "tok", model.PropertyUpload{Body: &buf, ContentType: mw.FormDataContentType()})
	if err != nil {
		t.Fatalf("CreateProperty error: %v", err)
	}
}

func TestTenantDetails_Envelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tenants/current" {
			t.Fatalf("path = %s, want /api/tenants/current", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"tenant":{"id":3,"name":"Amina","email":"amina@example.com","rent_amount":"25000"},"property":{"id":4,"name":"Kilimani Court","price":25000,"status":"occupied","image":"/uploads/4.jpg"},"stats":{"paidThisYear":12}}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	details, err := client.TenantDetails(context.Background(), "tok")
	if err != nil {
		t.Fatalf("TenantDetails error: %v", err)
	}
	if details.Tenant == nil || details.Tenant.Name != "Amina" || !details.Tenant.RentAmount.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("unexpected tenant: %+v", details.Tenant)
	}
	if details.Property == nil || details.Property.Image != ts.URL+"/uploads/4.jpg" {
		t.Fatalf("unexpected property: %+v", details.Property)
	}
}

func TestReport_Query(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/reports/payments" {
			t.Fatalf("path = %s, want /api/reports/payments", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("startDate") != "2026-01-01" || q.Has("endDate") {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"amount":15000},{"id":2,"amount":20000}]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	rows, err := client.Report(context.Background(), "tok", model.ReportPayments, model.ReportRange{StartDate: "2026-01-01"})
	if err != nil {
		t.Fatalf("Report error: %v", err)
	}
	if len(rows) != 2 || rows[1]["amount"] != float64(20000) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestRemoveTenant_Path(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/landlord/tenants/9" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 0, nil)

	if err := client.RemoveTenant(context.Background(), "tok", 9); err != nil {
		t.Fatalf("RemoveTenant error: %v", err)
	}
}
