package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/slotcart/config"
	"github.com/Domenick1991/slotcart/internal/email"
	"github.com/Domenick1991/slotcart/internal/kafka"
	"github.com/Domenick1991/slotcart/internal/obs"
	"github.com/Domenick1991/slotcart/internal/payment/omise"
	"github.com/Domenick1991/slotcart/internal/repository"
	"github.com/Domenick1991/slotcart/internal/scheduling"
	"github.com/Domenick1991/slotcart/internal/service/availability"
	"github.com/Domenick1991/slotcart/internal/service/booking"
	"github.com/Domenick1991/slotcart/internal/service/checkout"
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

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Telemetry.ServiceName+"-worker", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("init tracer: %v", err)
	}
	defer shutdownTracer(context.Background())

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	processor, err := omise.NewClient(cfg.Payment.PublicKey, cfg.Payment.SecretKey, cfg.Payment.Currency)
	if err != nil {
		log.Fatalf("init payment processor: %v", err)
	}
	schedulingClient := scheduling.NewClient(cfg.Scheduling.BaseURL, cfg.Scheduling.APIKey, time.Duration(cfg.Scheduling.TimeoutSeconds)*time.Second)

	checkoutService := checkout.NewService(
		repository.NewCartRepository(pool),
		repository.NewOrderRepository(pool),
		repository.NewSagaRepository(pool),
		availability.NewValidator(schedulingClient),
		payment.NewAuthorizer(processor),
		booking.NewOrchestrator(schedulingClient, booking.WithConcurrency(cfg.Checkout.BookingConcurrency)),
		taxRate,
		checkout.WithProducer(producer, cfg.Kafka.CheckoutEventsTopic),
		checkout.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)
	reconciler := checkout.NewReconciler(checkoutService, cfg.Worker.SagaStaleAfter())

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender()

	go func() {
		if err := consumer.ConsumeCheckoutEvents(ctx, emailSender.Send); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	sweep := time.Duration(cfg.Worker.ReconcileSweepMinutes) * time.Minute
	if sweep <= 0 {
		sweep = time.Minute
	}
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			settled, err := reconciler.Reconcile(ctx)
			if err != nil {
				log.Printf("reconcile sagas error: %v", err)
				continue
			}
			if settled > 0 {
				log.Printf("reconciled %d sagas", settled)
			}
		case <-ctx.Done():
			log.Printf("shutting down worker")
			return
		}
	}
}
