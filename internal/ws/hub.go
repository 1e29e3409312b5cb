package ws

import (
	"encoding/json"
	"sync"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/logger"
	"tokopaya-be/internal/order"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Update is the message pushed to subscribers when a payment moves.
type Update struct {
	OrderID       int64                 `json:"order_id"`
	PaymentStatus gateway.PaymentStatus `json:"payment_status"`
	OrderStatus   order.Status          `json:"order_status"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans payment updates out to clients subscribed per order. Slow
// clients get disconnected rather than block the broadcast.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[*client]struct{})}
}

func (h *Hub) BroadcastPaymentUpdate(orderID int64, paymentStatus gateway.PaymentStatus, orderStatus order.Status) {
	msg, err := json.Marshal(Update{
		OrderID:       orderID,
		PaymentStatus: paymentStatus,
		OrderStatus:   orderStatus,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	var stale []*client
	for c := range h.subs[orderID] {
		select {
		case c.send <- msg:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		logger.L().Warn("dropping slow websocket subscriber", zap.Int64("order_id", orderID))
		h.remove(orderID, c)
		c.conn.Close()
	}
}

// SubscriberCount reports how many clients watch an order.
func (h *Hub) SubscriberCount(orderID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orderID])
}

func (h *Hub) add(orderID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[orderID] == nil {
		h.subs[orderID] = make(map[*client]struct{})
	}
	h.subs[orderID][c] = struct{}{}
}

// remove is idempotent; the first call closes the client's send channel.
func (h *Hub) remove(orderID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[orderID]
	if !ok {
		return
	}
	if _, subscribed := set[c]; !subscribed {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, orderID)
	}
	close(c.send)
}
