package ws

import (
	"net/http"
	"strconv"
	"time"

	"tokopaya-be/internal/logger"
	"tokopaya-be/internal/middleware"
	"tokopaya-be/internal/order"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type Handler struct {
	hub      *Hub
	orders   order.Service
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, orders order.Service) *Handler {
	return &Handler{
		hub:    hub,
		orders: orders,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Subscribe upgrades the connection and streams payment updates for one
// order. Only the order's owner may subscribe.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx)

	userID := middleware.UserIDFromContext(ctx)
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	if _, err := h.orders.Detail(ctx, userID, orderID); err != nil {
		switch err {
		case order.ErrUnauthorized:
			http.Error(w, "forbidden", http.StatusForbidden)
		case order.ErrOrderNotFound:
			http.Error(w, "order not found", http.StatusNotFound)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 8)}
	h.hub.add(orderID, c)
	log.Info("websocket subscriber connected", zap.Int64("order_id", orderID))

	go h.writePump(c)
	h.readPump(orderID, c)
}

func (h *Handler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; it exists to notice disconnects and
// answer pings.
func (h *Handler) readPump(orderID int64, c *client) {
	defer h.hub.remove(orderID, c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
