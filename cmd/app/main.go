package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/slotcart/api"
	"github.com/Domenick1991/slotcart/config"
	"github.com/Domenick1991/slotcart/internal/bootstrap"
	"github.com/Domenick1991/slotcart/internal/cache"
	"github.com/Domenick1991/slotcart/internal/coupons"
	"github.com/Domenick1991/slotcart/internal/kafka"
	"github.com/Domenick1991/slotcart/internal/obs"
	"github.com/Domenick1991/slotcart/internal/payment/omise"
	"github.com/Domenick1991/slotcart/internal/repository"
	"github.com/Domenick1991/slotcart/internal/scheduling"
	"github.com/Domenick1991/slotcart/internal/service/availability"
	"github.com/Domenick1991/slotcart/internal/service/booking"
	"github.com/Domenick1991/slotcart/internal/service/cart"
	"github.com/Domenick1991/slotcart/internal/service/checkout"
	"github.com/Domenick1991/slotcart/internal/service/discount"
	"github.com/Domenick1991/slotcart/internal/service/payment"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	taxRate, err := cfg.Checkout.Tax()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("init tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("shutdown tracer: %v", err)
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Coupons.CacheTTLSeconds)*time.Second)
	defer redisCache.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		log.Printf("kafka not reachable yet, checkout events will be retried per publish: %v", err)
	}

	processor, err := omise.NewClient(cfg.Payment.PublicKey, cfg.Payment.SecretKey, cfg.Payment.Currency)
	if err != nil {
		log.Fatalf("init payment processor: %v", err)
	}
	schedulingClient := scheduling.NewClient(cfg.Scheduling.BaseURL, cfg.Scheduling.APIKey, time.Duration(cfg.Scheduling.TimeoutSeconds)*time.Second)
	couponChecker := coupons.NewCachedChecker(
		coupons.NewClient(cfg.Coupons.BaseURL, cfg.Coupons.APIKey, time.Duration(cfg.Coupons.TimeoutSeconds)*time.Second),
		redisCache,
	)

	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	sagaRepo := repository.NewSagaRepository(pool)

	cartService := cart.NewCartService(cartRepo, schedulingClient, taxRate)
	discountEngine := discount.NewEngine(cartRepo, couponChecker)
	authorizer := payment.NewAuthorizer(processor)
	orchestrator := booking.NewOrchestrator(schedulingClient, booking.WithConcurrency(cfg.Checkout.BookingConcurrency))
	checkoutService := checkout.NewService(
		cartRepo,
		orderRepo,
		sagaRepo,
		availability.NewValidator(schedulingClient),
		authorizer,
		orchestrator,
		taxRate,
		checkout.WithLocker(redisCache, cfg.Checkout.LockTTL()),
		checkout.WithProducer(producer, cfg.Kafka.CheckoutEventsTopic),
		checkout.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)

	router := bootstrap.NewRouter(
		api.NewAuthenticator(cfg.Auth.JWTSecret).Middleware(),
		api.NewCartHandler(cartService, discountEngine, authorizer, checkoutService),
		bootstrap.HealthCheck{Name: "postgres", Check: pool.Ping},
		bootstrap.HealthCheck{Name: "redis", Check: redisCache.Ping},
	)

	log.Printf("slotcart listening on %s", cfg.HTTP.Address)
	if err := bootstrap.Run(ctx, cfg.HTTP.Address, router); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
