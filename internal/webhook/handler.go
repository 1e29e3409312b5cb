package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/logger"
	"tokopaya-be/internal/payment"
	"tokopaya-be/internal/reconcile"

	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// NotificationStore is the slice of the payment repository the webhook
// endpoint touches.
type NotificationStore interface {
	SaveNotification(ctx context.Context, payload json.RawMessage) (int64, error)
	HasProcessedNotification(ctx context.Context, gatewayOrderID, transactionStatus string) (bool, error)
}

// Handler receives gateway payment notifications. It verifies, dedupes
// and stores the payload, then hands the id to the queue; all lifecycle
// decisions happen in the worker.
type Handler struct {
	store     NotificationStore
	pub       Publisher
	serverKey string
}

func NewHandler(store NotificationStore, pub Publisher, serverKey string) *Handler {
	return &Handler{store: store, pub: pub, serverKey: serverKey}
}

func (h *Handler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "failed to read body"})
		return
	}

	payload, err := payment.ParseNotificationPayload(body)
	if err != nil {
		log.Warn("rejecting malformed notification", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid payload"})
		return
	}
	log = log.With(
		zap.String("gateway_order_id", payload.OrderID),
		zap.String("transaction_status", payload.TransactionStatus),
	)

	// Unverified payloads are never persisted.
	if !gateway.VerifySignature(payload.OrderID, payload.StatusCode, payload.GrossAmount, payload.SignatureKey, h.serverKey) {
		log.Warn("rejecting notification with invalid signature")
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "invalid signature"})
		return
	}

	dup, err := h.store.HasProcessedNotification(ctx, payload.OrderID, payload.TransactionStatus)
	if err != nil {
		log.Error("duplicate check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "internal error"})
		return
	}
	if dup {
		log.Info("duplicate notification, already processed")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "notification already processed"})
		return
	}

	id, err := h.store.SaveNotification(ctx, body)
	if err != nil {
		log.Error("failed to store notification", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "internal error"})
		return
	}

	msg, err := json.Marshal(reconcile.Message{NotificationID: id})
	if err == nil {
		err = h.pub.Publish(ctx, msg)
	}
	if err != nil {
		// Stored but not queued: fail the request so the gateway retries.
		// The dedupe probe only matches processed rows, so the retry will
		// be accepted again.
		log.Error("failed to enqueue notification", zap.Int64("notification_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "internal error"})
		return
	}

	log.Info("notification accepted", zap.Int64("notification_id", id))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
