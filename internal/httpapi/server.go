package httpapi

import (
	"net/http"

	"tokopaya-be/internal/middleware"
	"tokopaya-be/internal/order"
	"tokopaya-be/internal/payment"
	"tokopaya-be/internal/product"
	"tokopaya-be/internal/webhook"
	"tokopaya-be/internal/ws"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Deps bundles everything the router serves.
type Deps struct {
	Products  product.Repository
	Orders    order.Service
	Payments  payment.Service
	Webhook   *webhook.Handler
	WS        *ws.Handler
	JWTSecret string
}

// NewRouter wires all routes. Webhook and payment routes sit behind a
// stricter rate limit than the browse routes.
func NewRouter(d Deps) *chi.Mux {
	browseLimiter := middleware.NewRateLimiter(rate.Limit(20), 40)
	paymentLimiter := middleware.NewRateLimiter(rate.Limit(5), 10)

	products := &productHandler{products: d.Products}
	orders := &orderHandler{orders: d.Orders}
	payments := &paymentHandler{payments: d.Payments}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondData(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(browseLimiter.Middleware)
		r.Get("/products", products.list)
		r.Get("/products/{productID}", products.detail)
	})

	// Gateway-facing. Authenticated by signature, not by JWT.
	r.Group(func(r chi.Router) {
		r.Use(paymentLimiter.Middleware)
		r.Post("/payment-events", d.Webhook.HandleNotification)
	})

	r.Group(func(r chi.Router) {
		r.Use(browseLimiter.Middleware)
		r.Use(middleware.Auth(d.JWTSecret))
		r.Post("/orders", orders.create)
		r.Get("/orders", orders.list)
		r.Get("/orders/{orderID}", orders.detail)
		r.Get("/ws/orders/{orderID}", d.WS.Subscribe)
	})

	r.Group(func(r chi.Router) {
		r.Use(paymentLimiter.Middleware)
		r.Use(middleware.Auth(d.JWTSecret))
		r.Post("/payments", payments.create)
		r.Get("/payments/{paymentID}", payments.detail)
		r.Get("/payments/{paymentID}/status", payments.checkStatus)
		r.Post("/payments/{paymentID}/cancel", payments.cancel)
	})

	return r
}
