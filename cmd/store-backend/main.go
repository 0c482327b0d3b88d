package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/palla98/store-backend/internal/cart"
	"github.com/palla98/store-backend/internal/catalog"
	"github.com/palla98/store-backend/internal/checkout"
	"github.com/palla98/store-backend/internal/config"
	"github.com/palla98/store-backend/internal/db"
	"github.com/palla98/store-backend/internal/dedup"
	"github.com/palla98/store-backend/internal/events"
	httpapi "github.com/palla98/store-backend/internal/http"
	"github.com/palla98/store-backend/internal/order"
	"github.com/palla98/store-backend/internal/payment"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[store-backend] ", log.LstdFlags|log.Lshortfile)

	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		logger.Fatal("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET must be set")
	}

	database := db.MustOpen(cfg.DatabaseDSN)
	defer database.Close()

	if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
		logger.Fatalf("run migrations: %v", err)
	}

	productRepo := catalog.NewRepository(database)
	cartRepo := cart.NewRepository(database)
	orderRepo := order.NewRepository(database)
	processedRepo := dedup.NewRepository(database)

	var publisher checkout.EventPublisher = events.NopPublisher{}
	if cfg.RabbitURL != "" {
		conn, err := events.Dial(cfg.RabbitURL)
		if err != nil {
			logger.Fatalf("connect to broker: %v", err)
		}
		defer conn.Close()

		p, err := events.NewPublisher(conn)
		if err != nil {
			logger.Fatalf("init publisher: %v", err)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Println("RABBITMQ_URL not set, events disabled")
	}

	gateway := payment.NewStripeGateway(payment.StripeConfig{
		APIBase:       cfg.StripeAPIBase,
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SiteURL:       cfg.SiteURL,
		Timeout:       cfg.GatewayTimeout,
	})

	cartSvc := cart.NewService(cartRepo, productRepo)
	checkoutSvc := checkout.NewService(cartRepo, orderRepo, gateway, publisher, processedRepo, logger)

	router := httpapi.NewRouter(
		httpapi.NewProductHandler(productRepo),
		httpapi.NewCartHandler(cartSvc),
		httpapi.NewOrderHandler(orderRepo),
		httpapi.NewCheckoutHandler(checkoutSvc, logger),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Printf("store-backend listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
