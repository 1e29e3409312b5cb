package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tokopaya-be/internal/logger"
	"tokopaya-be/internal/order"
	"tokopaya-be/internal/payment"
	"tokopaya-be/internal/product"

	"go.uber.org/zap"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// respondDomainError maps sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic message.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, payment.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrUnauthorized):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInsufficientStock),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, payment.ErrOrderAlreadyPaid),
		errors.Is(err, payment.ErrPaymentAlreadySucceeded),
		errors.Is(err, payment.ErrInvalidMethod):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, payment.ErrGateway):
		respondError(w, http.StatusBadGateway, payment.ErrGateway.Error())
	default:
		logger.FromCtx(r.Context()).Error("unhandled error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
