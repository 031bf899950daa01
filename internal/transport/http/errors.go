package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeStoreRequired      = "store_id_required"
	codeInvalidQuantity    = "invalid_quantity"
	codeInvalidAmount      = "invalid_amount"
	codeInvalidID          = "invalid_id"
	codeCartNotActive      = "cart_not_active"
	codeCartExpired        = "cart_expired"
	codeCartEmpty          = "cart_empty"
	codeForbidden          = "forbidden"
	codeInsufficientStock  = "insufficient_stock"
	codeReservationError   = "reservation_conflict"
	codeInvalidTransition  = "invalid_transition"
	codeVersionConflict    = "version_conflict"
	codeNotRefundable      = "order_not_refundable"
	codeRefundWindow       = "refund_window_closed"
	codeRefundExceeds      = "refund_exceeds_total"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// errorToResponse classifies a service error into an HTTP status and code.
// Unclassified errors surface as 500 internal_error.
func errorToResponse(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrOrderItemNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrCartOwnership):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, domain.ErrCartNotActive):
		return http.StatusConflict, codeCartNotActive
	case errors.Is(err, domain.ErrCartExpired):
		return http.StatusConflict, codeCartExpired
	case errors.Is(err, domain.ErrCartEmpty):
		return http.StatusConflict, codeCartEmpty
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, codeInsufficientStock
	case errors.Is(err, domain.ErrReservationConflict):
		return http.StatusConflict, codeReservationError
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, codeInvalidTransition
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, codeVersionConflict
	case errors.Is(err, domain.ErrOrderNotRefundable):
		return http.StatusConflict, codeNotRefundable
	case errors.Is(err, domain.ErrRefundWindowClosed):
		return http.StatusConflict, codeRefundWindow
	case errors.Is(err, domain.ErrRefundExceedsTotal):
		return http.StatusConflict, codeRefundExceeds
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, codeInvalidQuantity
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, codeInvalidAmount
	case errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest, codeInvalidID
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code := errorToResponse(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}
