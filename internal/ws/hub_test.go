package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/order"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestConn(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- c
	}))
	t.Cleanup(srv.Close)

	clientConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	conn := <-serverSide
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_Broadcast(t *testing.T) {
	t.Run("DeliversToSubscriber", func(t *testing.T) {
		hub := NewHub()
		c := &client{send: make(chan []byte, 1)}
		hub.add(42, c)

		hub.BroadcastPaymentUpdate(42, gateway.StatusSuccess, order.StatusPaid)

		select {
		case msg := <-c.send:
			var u Update
			require.NoError(t, json.Unmarshal(msg, &u))
			assert.Equal(t, int64(42), u.OrderID)
			assert.Equal(t, gateway.StatusSuccess, u.PaymentStatus)
			assert.Equal(t, order.StatusPaid, u.OrderStatus)
		case <-time.After(time.Second):
			t.Fatal("no update delivered")
		}
	})

	t.Run("OtherOrdersDoNotReceive", func(t *testing.T) {
		hub := NewHub()
		c := &client{send: make(chan []byte, 1)}
		hub.add(42, c)

		hub.BroadcastPaymentUpdate(43, gateway.StatusSuccess, order.StatusPaid)

		select {
		case <-c.send:
			t.Fatal("update leaked across orders")
		default:
		}
	})

	t.Run("SlowSubscriberDropped", func(t *testing.T) {
		hub := NewHub()
		conn := dialTestConn(t)
		c := &client{conn: conn, send: make(chan []byte)}
		hub.add(42, c)

		// nobody drains c.send, so the nonblocking send fails and the
		// subscriber is evicted
		hub.BroadcastPaymentUpdate(42, gateway.StatusExpire, order.StatusExpired)

		assert.Zero(t, hub.SubscriberCount(42))
		_, ok := <-c.send
		assert.False(t, ok, "send channel should be closed")
	})
}

func TestHub_RemoveIdempotent(t *testing.T) {
	hub := NewHub()
	c := &client{send: make(chan []byte, 1)}
	hub.add(42, c)

	hub.remove(42, c)
	assert.NotPanics(t, func() { hub.remove(42, c) })
	assert.Zero(t, hub.SubscriberCount(42))
}
