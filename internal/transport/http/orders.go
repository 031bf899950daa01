package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/app"
	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
)

// OrderCreator is the minimal interface needed to create an order from a cart.
type OrderCreator interface {
	CreateOrderFromCart(ctx context.Context, in app.CreateOrderInput) (domain.Order, error)
}

// OrderLifecycle is the minimal interface needed to drive an order's status.
type OrderLifecycle interface {
	GetOrder(ctx context.Context, storeID, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, storeID, orderID string, next domain.OrderStatus) (domain.Order, error)
	Cancel(ctx context.Context, storeID, orderID, reason string) (domain.Order, error)
	MarkShipped(ctx context.Context, storeID, orderID string, when time.Time) (domain.Order, error)
	MarkDelivered(ctx context.Context, storeID, orderID string, when time.Time) (domain.Order, error)
}

// HandleCreateOrder returns an HTTP handler for POST /orders.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
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

		var req createOrderRequest
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

		order, err := svc.CreateOrderFromCart(r.Context(), app.CreateOrderInput{
			StoreID:         store,
			CartID:          req.CartID,
			CustomerID:      req.CustomerID,
			ShippingAddress: req.ShippingAddress.toDomain(),
			BillingAddress:  req.BillingAddress.toDomain(),
			ClearCartAfter:  req.ClearCartAfter,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(orderToResponse(order))
	}
}

// HandleOrderActions routes /orders/{id} and /orders/{id}/{action}.
func HandleOrderActions(svc OrderLifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := storeID(r)
		if store == "" {
			writeError(w, http.StatusBadRequest, codeStoreRequired, "X-Store-ID header is required")
			return
		}

		orderID, action, ok := parseOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			order, err := svc.GetOrder(r.Context(), store, orderID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeOrder(w, http.StatusOK, order)
		case r.Method != http.MethodPost:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		case action == "status":
			handleUpdateStatus(w, r, svc, store, orderID)
		case action == "cancel":
			handleCancel(w, r, svc, store, orderID)
		case action == "ship":
			handleStamp(w, r, store, orderID, svc.MarkShipped)
		case action == "deliver":
			handleStamp(w, r, store, orderID, svc.MarkDelivered)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func handleUpdateStatus(w http.ResponseWriter, r *http.Request, svc OrderLifecycle, store, orderID string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "status is required")
		return
	}

	order, err := svc.UpdateStatus(r.Context(), store, orderID, domain.OrderStatus(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOrder(w, http.StatusOK, order)
}

func handleCancel(w http.ResponseWriter, r *http.Request, svc OrderLifecycle, store, orderID string) {
	var req struct {
		Reason string `json:"reason"`
	}
	// An empty body cancels without a reason.
	_ = json.NewDecoder(r.Body).Decode(&req)

	order, err := svc.Cancel(r.Context(), store, orderID, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOrder(w, http.StatusOK, order)
}

func handleStamp(w http.ResponseWriter, r *http.Request, store, orderID string, stamp func(ctx context.Context, storeID, orderID string, when time.Time) (domain.Order, error)) {
	var req struct {
		When *time.Time `json:"when"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	when := time.Time{}
	if req.When != nil {
		when = *req.When
	}

	order, err := stamp(r.Context(), store, orderID, when)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOrder(w, http.StatusOK, order)
}

func parseOrderPath(path string) (orderID, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "orders" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		return parts[1], "", true
	}
	return parts[1], parts[2], true
}

type createOrderRequest struct {
	CartID          string         `json:"cart_id"`
	CustomerID      string         `json:"customer_id"`
	ShippingAddress addressPayload `json:"shipping_address"`
	BillingAddress  addressPayload `json:"billing_address"`
	ClearCartAfter  bool           `json:"clear_cart_after"`
}

func (r createOrderRequest) validate() error {
	if r.CartID == "" || r.CustomerID == "" {
		return errors.New("cart_id and customer_id are required")
	}
	return nil
}

type addressPayload struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type orderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    string              `json:"customer_id"`
	Status        string              `json:"status"`
	Subtotal      string              `json:"subtotal"`
	Total         string              `json:"total"`
	OrderDate     time.Time           `json:"order_date"`
	ShippedDate   *time.Time          `json:"shipped_date,omitempty"`
	DeliveredDate *time.Time          `json:"delivered_date,omitempty"`
	Items         []orderItemResponse `json:"items"`
}

func orderToResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			TotalPrice:  it.TotalPrice.StringFixed(2),
		})
	}
	return orderResponse{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		Subtotal:      order.Subtotal.StringFixed(2),
		Total:         order.Total.StringFixed(2),
		OrderDate:     order.OrderDate,
		ShippedDate:   order.ShippedDate,
		DeliveredDate: order.DeliveredDate,
		Items:         items,
	}
}

func writeOrder(w http.ResponseWriter, status int, order domain.Order) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(orderToResponse(order))
}
