package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	paymentsvc "github.com/andresmgomez/pasarela-backend/internal/payments"
	"github.com/andresmgomez/pasarela-backend/pkg/enums"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
)

type stubPaymentService struct {
	processed *paymentsvc.ProcessPaymentInput
	result    *paymentsvc.TransactionDTO
	status    *paymentsvc.StatusDTO
	integrity *paymentsvc.IntegrityDTO
	err       error
}

func (s *stubPaymentService) ProcessPayment(_ context.Context, input paymentsvc.ProcessPaymentInput) (*paymentsvc.TransactionDTO, error) {
	s.processed = &input
	return s.result, s.err
}

func (s *stubPaymentService) GetStatus(_ context.Context, _ string) (*paymentsvc.StatusDTO, error) {
	return s.status, s.err
}

func (s *stubPaymentService) Integrity(_ context.Context, input paymentsvc.IntegrityInput) (*paymentsvc.IntegrityDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &paymentsvc.IntegrityDTO{
		Reference:     input.Reference,
		AmountInCents: input.AmountInCents,
		Currency:      input.Currency,
		Signature:     "sig",
	}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func TestProcessPayment(t *testing.T) {
	logg := testLogger()

	t.Run("success", func(t *testing.T) {
		stub := &stubPaymentService{result: &paymentsvc.TransactionDTO{
			ID:        uuid.New(),
			Reference: "sale-1",
			Status:    enums.TransactionStatusApproved,
		}}
		body := `{"reference":"sale-1","customer":{"email":"ana@example.com"},"product_id":"` + uuid.NewString() + `","payment_token":"tok_test_123"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
		rec := httptest.NewRecorder()
		ProcessPayment(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.processed == nil || stub.processed.Reference != "sale-1" {
			t.Fatalf("service did not receive the payload")
		}
		if stub.processed.PaymentToken != "tok_test_123" {
			t.Fatalf("payment token not forwarded")
		}
	})

	t.Run("missing token", func(t *testing.T) {
		stub := &stubPaymentService{}
		body := `{"reference":"sale-1","customer":{"email":"ana@example.com"},"product_id":"` + uuid.NewString() + `"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
		rec := httptest.NewRecorder()
		ProcessPayment(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
		if stub.processed != nil {
			t.Fatalf("service should not run on invalid payload")
		}
	})

	t.Run("insufficient stock", func(t *testing.T) {
		stub := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock")}
		body := `{"reference":"sale-1","customer":{"email":"ana@example.com"},"product_id":"` + uuid.NewString() + `","payment_token":"tok"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
		rec := httptest.NewRecorder()
		ProcessPayment(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409 got %d", rec.Code)
		}
	})

	t.Run("nil service", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		ProcessPayment(nil, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500 got %d", rec.Code)
		}
	})
}

func TestGetPaymentStatus(t *testing.T) {
	logg := testLogger()

	t.Run("found", func(t *testing.T) {
		stub := &stubPaymentService{status: &paymentsvc.StatusDTO{
			TransactionDTO: paymentsvc.TransactionDTO{Reference: "sale-9", Status: enums.TransactionStatusPending},
		}}
		req := newRouteRequest(http.MethodGet, "/api/v1/payments/sale-9", "identifier", "sale-9")
		rec := httptest.NewRecorder()
		GetPaymentStatus(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		var payload struct {
			Data paymentsvc.StatusDTO `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if payload.Data.Reference != "sale-9" {
			t.Fatalf("unexpected reference %q", payload.Data.Reference)
		}
	})

	t.Run("not found", func(t *testing.T) {
		stub := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")}
		req := newRouteRequest(http.MethodGet, "/api/v1/payments/missing", "identifier", "missing")
		rec := httptest.NewRecorder()
		GetPaymentStatus(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 got %d", rec.Code)
		}
	})
}

func TestPaymentIntegrity(t *testing.T) {
	logg := testLogger()

	t.Run("signs", func(t *testing.T) {
		stub := &stubPaymentService{}
		body := `{"reference":"sale-5","amount_in_cents":6500000}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/integrity", strings.NewReader(body))
		rec := httptest.NewRecorder()
		PaymentIntegrity(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
		}
		var payload struct {
			Data paymentsvc.IntegrityDTO `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if payload.Data.Signature != "sig" {
			t.Fatalf("unexpected signature %q", payload.Data.Signature)
		}
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		stub := &stubPaymentService{}
		body := `{"reference":"sale-5","amount_in_cents":0}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/integrity", strings.NewReader(body))
		rec := httptest.NewRecorder()
		PaymentIntegrity(stub, logg).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})
}
