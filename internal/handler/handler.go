// Package handler exposes the checkout service over HTTP: customer order
// endpoints and an admin surface, both behind JWT auth.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/vietcart/checkout-service/internal/domain/order"
	"github.com/vietcart/checkout-service/internal/domain/pricing"
	"github.com/vietcart/checkout-service/internal/inventory"
)

// Handler wires the order service into chi routes.
type Handler struct {
	orders *order.Service
	auth   *Authenticator
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(orders *order.Service, auth *Authenticator) *Handler {
	return &Handler{orders: orders, auth: auth}
}

// Register mounts the order and admin routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(h.auth.RequireAuth)
		r.Post("/checkout", h.checkout)
		r.Post("/create", h.createOrder)
		r.Post("/from-cart", h.createFromCart)
		r.Get("/my-orders", h.myOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
	})

	r.Route("/api/admin/orders", func(r chi.Router) {
		r.Use(h.auth.RequireAuth, h.auth.RequireAdmin)
		r.Get("/", h.listOrders)
		r.Get("/stats", h.orderStats)
		r.Get("/{orderID}", h.adminGetOrder)
		r.Patch("/{orderID}/status", h.updateOrderStatus)
	})
}

// envelope is the uniform response body.
type envelope struct {
	Status    string `json:"status"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{
		Status:    "success",
		Code:      status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, code, message string) {
	writeJSON(w, status, envelope{
		Status:    "error",
		Code:      status,
		Message:   message,
		Data:      map[string]string{"error_code": code},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondServiceError maps domain errors onto HTTP statuses. Unknown errors
// are logged and hidden behind a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidQty    *order.InvalidQuantityError
		unavailable   *order.UnavailableItemError
		badTransition *order.InvalidTransitionError
		badPricing    *pricing.InvalidPricingError
		rejected      *inventory.RejectedError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrMissingShippingAddress),
		errors.Is(err, order.ErrMissingPaymentMethod):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.As(err, &badPricing):
		writeError(w, r, http.StatusBadRequest, "INVALID_PRICING", err.Error())
	case errors.As(err, &badTransition):
		writeError(w, r, http.StatusBadRequest, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "FORBIDDEN", "access denied")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "order not found")
	case errors.As(err, &invalidQty):
		writeError(w, r, http.StatusUnprocessableEntity, "INVALID_QUANTITY", err.Error())
	case errors.As(err, &unavailable):
		writeError(w, r, http.StatusUnprocessableEntity, "ITEM_UNAVAILABLE", err.Error())
	case errors.Is(err, order.ErrInsufficientStock):
		writeError(w, r, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK", err.Error())
	case errors.As(err, &rejected):
		writeError(w, r, http.StatusUnprocessableEntity, "INVENTORY_REJECTED", rejected.Message)
	case errors.Is(err, inventory.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "INVENTORY_UNAVAILABLE", "inventory service unavailable")
	default:
		zctx.From(r.Context()).Error("Unhandled service error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
