package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokopaya-be/internal/config"
	"tokopaya-be/internal/db"
	"tokopaya-be/internal/expiry"
	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/httpapi"
	"tokopaya-be/internal/logger"
	"tokopaya-be/internal/messaging"
	"tokopaya-be/internal/metrics"
	"tokopaya-be/internal/order"
	"tokopaya-be/internal/payment"
	"tokopaya-be/internal/product"
	"tokopaya-be/internal/reconcile"
	"tokopaya-be/internal/webhook"
	"tokopaya-be/internal/ws"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	database := db.InitDB(cfg)
	defer database.Close()

	mtr := &metrics.Reconciliation{}
	hub := ws.NewHub()

	gw := gateway.NewMidtransClient(cfg.MidtransServerKey, cfg.MidtransProduction)

	productRepo := product.NewRepository(database)
	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo)

	paymentRepo := payment.NewRepository(database)
	applier := reconcile.NewApplier(database)
	paymentSvc := payment.NewService(paymentRepo, orderRepo, gw, applier)

	publisher, err := messaging.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue)
	if err != nil {
		log.Fatal("failed to connect publisher", zap.Error(err))
	}
	defer publisher.Close()

	worker := reconcile.NewWorker(applier, paymentRepo, hub, mtr)
	consumer := messaging.NewConsumer(cfg.AMQPURL, cfg.AMQPQueue, worker.HandleDelivery, worker.RecordFailure)

	scheduler := expiry.NewScheduler(paymentRepo, hub, mtr, cfg.ExpirySweepInterval)

	router := httpapi.NewRouter(httpapi.Deps{
		Products:  productRepo,
		Orders:    orderSvc,
		Payments:  paymentSvc,
		Webhook:   webhook.NewHandler(paymentRepo, publisher, cfg.MidtransServerKey),
		WS:        ws.NewHandler(hub, orderSvc),
		JWTSecret: cfg.JWTSecret,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("consumer stopped", zap.Error(err))
			stop()
		}
	}()
	go scheduler.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}
