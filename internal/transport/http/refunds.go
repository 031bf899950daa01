package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/app"
	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/shopspring/decimal"
)

// RefundCreator is the minimal interface needed to create refunds.
type RefundCreator interface {
	CreateRefund(ctx context.Context, in app.CreateRefundInput) (domain.Refund, error)
}

// HandleCreateRefund returns an HTTP handler for POST /refunds.
func HandleCreateRefund(svc RefundCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		store := storeID(r)
		if store == "" {
			writeError(w, http.StatusBadRequest, codeStoreRequired, "X-Store-ID header is required")
			return
		}

		var req createRefundRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
			return
		}

		amount := decimal.Zero
		if req.Amount != "" {
			parsed, err := decimal.NewFromString(req.Amount)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidAmount, "invalid amount")
				return
			}
			amount = parsed
		}

		items := make([]app.RefundItemInput, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, app.RefundItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
		}

		refund, err := svc.CreateRefund(r.Context(), app.CreateRefundInput{
			StoreID: store,
			OrderID: req.OrderID,
			Type:    domain.RefundType(req.Type),
			Amount:  amount,
			Items:   items,
			Reason:  req.Reason,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(refundResponse{
			ID:        refund.ID,
			OrderID:   refund.OrderID,
			Type:      string(refund.Type),
			Amount:    refund.Amount.StringFixed(2),
			Reason:    refund.Reason,
			CreatedAt: refund.CreatedAt,
		})
	}
}

type refundItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createRefundRequest struct {
	OrderID string              `json:"order_id"`
	Type    string              `json:"type"`
	Amount  string              `json:"amount"`
	Items   []refundItemPayload `json:"items"`
	Reason  string              `json:"reason"`
}

func (r createRefundRequest) validate() error {
	if r.OrderID == "" {
		return errors.New("order_id is required")
	}
	switch domain.RefundType(r.Type) {
	case domain.RefundTypeFull, domain.RefundTypePartial:
		return nil
	default:
		return errors.New("type must be full or partial")
	}
}

type refundResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
