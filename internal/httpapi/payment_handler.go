package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/middleware"
	"tokopaya-be/internal/payment"

	"github.com/go-chi/chi/v5"
)

type paymentHandler struct {
	payments payment.Service
}

func (h *paymentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ctx := r.Context()
	p, err := h.payments.CreatePayment(ctx,
		middleware.UserIDFromContext(ctx), req.OrderID, middleware.EmailFromContext(ctx),
		payment.ChargeParams{
			Method:      gateway.Method(req.Method),
			Bank:        req.Bank,
			CallbackURL: req.CallbackURL,
		},
	)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *paymentHandler) detail(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	p, err := h.payments.Detail(r.Context(), middleware.UserIDFromContext(r.Context()), paymentID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toPaymentResponse(p))
}

// checkStatus polls the gateway and reconciles before answering, so the
// client always sees the freshest state the gateway will admit to.
func (h *paymentHandler) checkStatus(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	res, err := h.payments.CheckStatus(r.Context(), middleware.UserIDFromContext(r.Context()), paymentID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"payment":            toPaymentResponse(res.Payment),
		"transaction_status": res.Gateway.TransactionStatus,
		"fraud_status":       res.Gateway.FraudStatus,
	})
}

func (h *paymentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	p, err := h.payments.Cancel(r.Context(), middleware.UserIDFromContext(r.Context()), paymentID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, toPaymentResponse(p))
}

func (h *paymentHandler) paymentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid payment id")
		return 0, false
	}
	return id, true
}
