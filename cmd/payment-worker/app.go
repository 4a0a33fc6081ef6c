package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AuroraCargo/CargoPort/config"
	"github.com/AuroraCargo/CargoPort/internal/broker/kafka"
	"github.com/AuroraCargo/CargoPort/internal/cache/rediscache"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	gatewayfake "github.com/AuroraCargo/CargoPort/internal/integrations/gateway/fake"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway/paystackhttp"
	"github.com/AuroraCargo/CargoPort/internal/services/payments"
	"github.com/AuroraCargo/CargoPort/internal/storage/pgportal"
)

type workerFactories struct {
	newStorage       func(cfg *config.Config) (repo payments.ClaimRepository, closeFn func(), err error)
	newProducer      func(cfg *config.Config) payments.Producer
	newRateLimiter   func(cfg *config.Config) payments.RateLimiter
	newGatewayClient func(cfg *config.Config) gateway.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (payments.ClaimRepository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgportal.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) payments.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) payments.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newGatewayClient: func(cfg *config.Config) gateway.Client {
			// Без секретного ключа ходить в Paystack бессмысленно —
			// остаёмся на детерминированном fake.
			if cfg.Gateway.Mode == "paystack" && cfg.Gateway.SecretKey != "" {
				return paystackhttp.New(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey)
			}
			return gatewayfake.New()
		},
	}
}

func RunPaymentWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.VerifiedTopicName
	if topic == "" {
		topic = "payments.verified"
	}

	pollInterval := time.Duration(cfg.Portal.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.Portal.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.Portal.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.Portal.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.Portal.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}
	abandonAfter := time.Duration(cfg.Portal.WorkerAbandonAfterHours) * time.Hour
	if abandonAfter <= 0 {
		abandonAfter = 24 * time.Hour
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	gw := f.newGatewayClient(cfg)

	v := payments.NewVerifier(repo, gw, producer, rl, topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithAbandonAfter(abandonAfter).
		WithPlanner(plannerConfigFromPortal(cfg))

	httpAddr := cfg.Portal.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}
	swaggerPath := os.Getenv("workerSwaggerPath")

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
			verifier:    v,
			cfg:         cfg,
		})
	}()

	slog.Info("payment worker started", "topic", topic, "poll_interval", pollInterval.String())

	runErr := make(chan error, 1)
	go func() { runErr <- v.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		return err
	}
}

func plannerConfigFromPortal(cfg *config.Config) payments.PlannerConfig {
	return payments.PlannerConfig{
		PendingRetryDelay: time.Duration(cfg.Portal.WorkerNextVerifyPendingSeconds) * time.Second,
		Backoff1:          time.Duration(cfg.Portal.WorkerBackoff1Seconds) * time.Second,
		Backoff2:          time.Duration(cfg.Portal.WorkerBackoff2Seconds) * time.Second,
		Backoff3:          time.Duration(cfg.Portal.WorkerBackoff3Seconds) * time.Second,
		Backoff4:          time.Duration(cfg.Portal.WorkerBackoff4Seconds) * time.Second,
	}
}
