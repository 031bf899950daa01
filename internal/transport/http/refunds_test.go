package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/app"
	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/shopspring/decimal"
)

func TestHandleCreateRefund(t *testing.T) {
	t.Parallel()

	refund := domain.Refund{
		ID: "refund-1", StoreID: "store-1", OrderID: "order-1",
		Type: domain.RefundTypePartial, Amount: decimal.RequireFromString("30.00"),
		Reason: "damaged item", CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name           string
		method         string
		store          string
		body           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:   "created with amount",
			method: http.MethodPost, store: "store-1",
			body:           `{"order_id":"order-1","type":"partial","amount":"30.00","reason":"damaged item"}`,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"amount":"30.00"`,
		},
		{
			name:   "created with items",
			method: http.MethodPost, store: "store-1",
			body:           `{"order_id":"order-1","type":"partial","items":[{"product_id":"prod-1","quantity":1}]}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:   "full refund",
			method: http.MethodPost, store: "store-1",
			body:           `{"order_id":"order-1","type":"full"}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:   "missing store header",
			method: http.MethodPost,
			body:           `{"order_id":"order-1","type":"full"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "unknown refund type",
			method: http.MethodPost, store: "store-1",
			body:           `{"order_id":"order-1","type":"store_credit"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "missing order id",
			method: http.MethodPost, store: "store-1",
			body:           `{"type":"full"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "malformed amount",
			method: http.MethodPost, store: "store-1",
			body:           `{"order_id":"order-1","type":"partial","amount":"thirty"}`,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"code":"invalid_amount"`,
		},
		{
			name:   "window closed",
			method: http.MethodPost, store: "store-1",
			body:           `{"order_id":"order-1","type":"full"}`,
			serviceErr:     domain.ErrRefundWindowClosed,
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"code":"refund_window_closed"`,
		},
		{
			name:   "exceeds total",
			method: http.MethodPost, store: "store-1",
			body:           `{"order_id":"order-1","type":"partial","amount":"200.00"}`,
			serviceErr:     domain.ErrRefundExceedsTotal,
			expectedStatus: http.StatusConflict,
		},
		{
			name:   "wrong method",
			method: http.MethodGet, store: "store-1",
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubRefundCreator{refund: refund, err: tt.serviceErr}

			req := httptest.NewRequest(tt.method, "/refunds", strings.NewReader(tt.body))
			if tt.store != "" {
				req.Header.Set(storeHeader, tt.store)
			}
			rec := httptest.NewRecorder()

			HandleCreateRefund(svc).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

type stubRefundCreator struct {
	refund domain.Refund
	err    error
}

func (s *stubRefundCreator) CreateRefund(_ context.Context, _ app.CreateRefundInput) (domain.Refund, error) {
	if s.err != nil {
		return domain.Refund{}, s.err
	}
	return s.refund, nil
}
