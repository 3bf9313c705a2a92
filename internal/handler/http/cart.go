package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Ariya-Dice/tansoo/internal/domain"
	"github.com/Ariya-Dice/tansoo/internal/service"
	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
	"github.com/Ariya-Dice/tansoo/pkg/httpclient"
	"github.com/Ariya-Dice/tansoo/pkg/httputil"
)

// DefaultMaxBodyBytes caps request bodies. A full product with specs and
// image URLs fits comfortably.
const DefaultMaxBodyBytes = 64 << 10

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service      *service.CartService
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger, maxBodyBytes int64) *CartHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &CartHandler{service: svc, logger: logger, maxBodyBytes: maxBodyBytes}
}

// UpdateQuantityRequest is the JSON request body for updating a line's quantity.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetCart(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItemInput
	if err := httputil.DecodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	snap, err := h.service.AddItem(r.Context(), sessionFromContext(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}[/{variant}]
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID, variant, err := lineFromPath(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var req UpdateQuantityRequest
	if err := httputil.DecodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	snap, err := h.service.UpdateItemQuantity(r.Context(), sessionFromContext(r.Context()), productID, variant, *req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}[/{variant}]
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, variant, err := lineFromPath(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	snap, err := h.service.RemoveItem(r.Context(), sessionFromContext(r.Context()), productID, variant)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.ClearCart(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// Checkout handles POST /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutInput
	if err := httputil.DecodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	req.IdempotencyKey = r.Header.Get(httpclient.IdempotencyKeyHeader)

	res, err := h.service.Checkout(r.Context(), sessionFromContext(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, res)
}

// lineFromPath reads the line key from the URL. The variant comes from the
// second path segment or, for clients that cannot put it in the path, the
// variant query parameter.
func lineFromPath(r *http.Request) (domain.ProductID, string, error) {
	productID, err := url.PathUnescape(chi.URLParam(r, "productId"))
	if err != nil || productID == "" {
		return "", "", apperrors.InvalidInput("productId is required")
	}

	variant, err := url.PathUnescape(chi.URLParam(r, "variant"))
	if err != nil {
		return "", "", apperrors.InvalidInput("variant is not valid")
	}
	if variant == "" {
		variant = r.URL.Query().Get("variant")
	}
	return domain.ProductID(productID), variant, nil
}
