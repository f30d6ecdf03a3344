package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vietcart/checkout-service/internal/domain/order"
)

type pageDTO struct {
	Orders      []orderDTO `json:"orders"`
	Total       int        `json:"total"`
	TotalPages  int        `json:"total_pages"`
	CurrentPage int        `json:"current_page"`
}

type statsDTO struct {
	Total             int             `json:"total"`
	Pending           int             `json:"pending"`
	Confirmed         int             `json:"confirmed"`
	Shipped           int             `json:"shipped"`
	Delivered         int             `json:"delivered"`
	Cancelled         int             `json:"cancelled"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	status := order.Status(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATUS", "unknown order status")
		return
	}

	result, err := h.orders.ListOrders(r.Context(), order.ListFilter{
		Status: status,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Orders retrieved successfully", pageDTO{
		Orders:      toOrderDTOs(result.Orders),
		Total:       result.Total,
		TotalPages:  result.TotalPages,
		CurrentPage: result.CurrentPage,
	})
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.orders.OrderStats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Order statistics retrieved successfully", statsDTO{
		Total:             s.Total,
		Pending:           s.Pending,
		Confirmed:         s.Confirmed,
		Shipped:           s.Shipped,
		Delivered:         s.Delivered,
		Cancelled:         s.Cancelled,
		TotalRevenue:      s.TotalRevenue,
		AverageOrderValue: s.AverageOrderValue,
	})
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"), id.UserID, true)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Order retrieved successfully", toOrderDTO(o))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	target := order.Status(body.Status)
	if !target.Valid() {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATUS", "unknown order status")
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), target, id.Email)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Order status updated successfully", toOrderDTO(o))
}
