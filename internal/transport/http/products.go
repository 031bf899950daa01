package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductCatalog is the minimal surface to seed and inspect products.
// Catalog CRUD proper lives in the catalog service; this is just enough to
// provision stock for fulfillment.
type ProductCatalog interface {
	CreateProduct(ctx context.Context, p domain.Product) error
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
}

// StockReader exposes availability for a product.
type StockReader interface {
	Availability(ctx context.Context, storeID, productID string) (int, error)
	TotalReserved(ctx context.Context, storeID, productID string) (int, error)
}

// HandleProducts routes POST and GET /admin/products.
func HandleProducts(catalog ProductCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := storeID(r)
		if store == "" {
			writeError(w, http.StatusBadRequest, codeStoreRequired, "X-Store-ID header is required")
			return
		}

		switch r.Method {
		case http.MethodPost:
			handleCreateProduct(w, r, catalog, store)
		case http.MethodGet:
			products, err := catalog.ListProducts(r.Context(), store)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			out := make([]productResponse, 0, len(products))
			for _, p := range products {
				out = append(out, productToResponse(p))
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(out)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleAvailability serves GET /products/{id}/availability.
func HandleAvailability(stock StockReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		store := storeID(r)
		if store == "" {
			writeError(w, http.StatusBadRequest, codeStoreRequired, "X-Store-ID header is required")
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "products" || parts[1] == "" || parts[2] != "availability" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		productID := parts[1]

		available, err := stock.Availability(r.Context(), store, productID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		reserved, err := stock.TotalReserved(r.Context(), store, productID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"product_id": productID,
			"available":  available,
			"reserved":   reserved,
		})
	}
}

func handleCreateProduct(w http.ResponseWriter, r *http.Request, catalog ProductCatalog, store string) {
	var req createProductRequest
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

	price := decimal.Zero
	if req.Price != "" {
		parsed, err := decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidAmount, "invalid price")
			return
		}
		price = parsed
	}

	product := domain.Product{
		ID:                uuid.NewString(),
		StoreID:           store,
		Name:              req.Name,
		SKU:               req.SKU,
		Price:             price,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		TrackInventory:    req.TrackInventory == nil || *req.TrackInventory,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := catalog.CreateProduct(r.Context(), product); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(productToResponse(product))
}

type createProductRequest struct {
	Name              string `json:"name"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	TrackInventory    *bool  `json:"track_inventory"`
}

func (r createProductRequest) validate() error {
	if r.Name == "" || r.SKU == "" {
		return errors.New("name and sku are required")
	}
	if r.Quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	return nil
}

type productResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	TrackInventory    bool   `json:"track_inventory"`
}

func productToResponse(p domain.Product) productResponse {
	return productResponse{
		ID:                p.ID,
		Name:              p.Name,
		SKU:               p.SKU,
		Price:             p.Price.StringFixed(2),
		Quantity:          p.Quantity,
		LowStockThreshold: p.LowStockThreshold,
		TrackInventory:    p.TrackInventory,
	}
}
