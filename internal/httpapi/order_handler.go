package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tokopaya-be/internal/middleware"
	"tokopaya-be/internal/order"

	"github.com/go-chi/chi/v5"
)

type orderHandler struct {
	orders order.Service
}

func (h *orderHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	items := make([]order.NewItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.NewItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.orders.Create(r.Context(), middleware.UserIDFromContext(r.Context()), items, order.ShippingDetails{
		Name:       req.ShippingName,
		Address:    req.ShippingAddress,
		City:       req.ShippingCity,
		PostalCode: req.ShippingPostalCode,
		Phone:      req.ShippingPhone,
		Amount:     req.ShippingAmount,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, toOrderResponse(o))
}

func (h *orderHandler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	respondData(w, http.StatusOK, resp)
}

func (h *orderHandler) detail(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orders.Detail(r.Context(), middleware.UserIDFromContext(r.Context()), orderID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toOrderResponse(o))
}
