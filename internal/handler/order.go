package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vietcart/checkout-service/internal/domain/order"
	"github.com/vietcart/checkout-service/internal/domain/pricing"
)

type lineItemDTO struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	ImageURL    string          `json:"image_url,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Categories  []string        `json:"categories,omitempty"`
}

type checkoutRequestDTO struct {
	UseCart         bool          `json:"use_cart"`
	Items           []lineItemDTO `json:"items"`
	ShippingAddress order.Address `json:"shipping_address"`
	PaymentMethod   string        `json:"payment_method"`
	Notes           string        `json:"notes"`
}

type orderItemDTO struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	ImageURL    string          `json:"image_url,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type orderDTO struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	ShippingAddress order.Address   `json:"shipping_address"`
	Items           []orderItemDTO  `json:"items"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   string          `json:"payment_status"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, nil)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	useCart := false
	h.placeOrder(w, r, &useCart)
}

func (h *Handler) createFromCart(w http.ResponseWriter, r *http.Request) {
	useCart := true
	h.placeOrder(w, r, &useCart)
}

// placeOrder is the shared checkout entry. forceCart overrides the request's
// use_cart flag for the /create and /from-cart aliases.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, forceCart *bool) {
	id, _ := identityFrom(r.Context())

	var dto checkoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}
	if forceCart != nil {
		dto.UseCart = *forceCart
	}

	o, err := h.orders.Checkout(r.Context(), id.UserID, id.Email, order.CheckoutRequest{
		UseCart:         dto.UseCart,
		Items:           toLineItems(dto.Items),
		ShippingAddress: dto.ShippingAddress,
		PaymentMethod:   dto.PaymentMethod,
		Notes:           dto.Notes,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Checkout completed successfully", toOrderDTO(o))
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.orders.UserOrders(r.Context(), id.UserID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Orders retrieved successfully", toOrderDTOs(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"), id.UserID, id.IsAdmin())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Order retrieved successfully", toOrderDTO(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	o, err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), id.UserID, id.Email, body.Reason)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Order cancelled successfully", toOrderDTO(o))
}

func toLineItems(dtos []lineItemDTO) []pricing.LineItem {
	items := make([]pricing.LineItem, len(dtos))
	for i, d := range dtos {
		items[i] = pricing.LineItem{
			ProductID:   d.ProductID,
			ProductName: d.ProductName,
			ImageURL:    d.ImageURL,
			UnitPrice:   d.UnitPrice,
			Quantity:    d.Quantity,
			Categories:  d.Categories,
		}
	}
	return items
}

func toOrderDTO(o *order.Order) orderDTO {
	items := make([]orderItemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemDTO{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			ImageURL:    it.ImageURL,
			Price:       it.Price,
			Quantity:    it.Quantity,
			TotalPrice:  it.TotalPrice,
		}
	}
	return orderDTO{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		Items:           items,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   string(o.PaymentStatus),
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toOrderDTOs(orders []order.Order) []orderDTO {
	out := make([]orderDTO, len(orders))
	for i := range orders {
		out[i] = toOrderDTO(&orders[i])
	}
	return out
}
