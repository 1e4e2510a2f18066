package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/server"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/util"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Environment.Name, cfg.Log.Level); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	db, err := client.InitMysqlClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}

	stripeClient := client.NewStripeClient(&cfg.Stripe)

	// Plan price lookups degrade to direct processor calls without redis.
	priceCache, err := client.NewRedisPriceCache(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, price caching disabled", zap.Error(err))
		priceCache = nil
	}

	catalog := config.DefaultPlanCatalog(cfg.Stripe.ProPriceID)

	cartRepo := repository.NewCartRepository(db)
	productRepo := repository.NewProductRepository(db)
	storeRepo := repository.NewStoreRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	cartService := service.NewCartService(db, cartRepo, productRepo)
	stripeService := service.NewStripeService(
		db, stripeClient, cfg.BaseURL, &cfg.Pricing,
		storeRepo, paymentRepo, cartRepo,
	)
	orderService := service.NewOrderService(db, cartRepo, productRepo, orderRepo)
	planService := service.NewPlanService(stripeClient, catalog, priceCache, cfg.BaseURL, subRepo)
	webhookService := service.NewWebhookService(
		stripeClient, cfg.Stripe.WebhookSecret,
		orderService, webhookEventRepo, subRepo,
	)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(
		cfg.Auth.JWTSecret,
		cartService, stripeService, orderService, planService, webhookService,
	)

	logger.Info("starting HTTP server", zap.String("addr", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	logger.Info("signal received, starting graceful shutdown")

	if err := srv.Shutdown(); err != nil {
		logger.Fatal("HTTP server shutdown error", zap.Error(err))
	}
}
