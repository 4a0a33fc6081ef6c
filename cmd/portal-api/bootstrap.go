package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AuroraCargo/CargoPort/config"
	"github.com/AuroraCargo/CargoPort/internal/api/portalapi"
	"github.com/AuroraCargo/CargoPort/internal/broker/kafka"
	"github.com/AuroraCargo/CargoPort/internal/cache/rediscache"
	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	gatewayfake "github.com/AuroraCargo/CargoPort/internal/integrations/gateway/fake"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway/paystackhttp"
	"github.com/AuroraCargo/CargoPort/internal/services/notifier"
	"github.com/AuroraCargo/CargoPort/internal/services/payments"
	"github.com/AuroraCargo/CargoPort/internal/services/shipments"
	"github.com/AuroraCargo/CargoPort/internal/services/support"
	"github.com/AuroraCargo/CargoPort/internal/storage/pgportal"
)

type portalAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   portalAPIOpts

	server    *portalapi.Server
	shipments *shipments.Service
	payments  *payments.Service
	hub       *feed.Hub
	consumer  *kafka.Consumer
	closeDB   func()
}

func mustBootstrapPortalAPI() *portalAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Portal.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Portal.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "portal-api"
	}
	changesTopic := cfg.Kafka.ChangesTopicName
	if changesTopic == "" {
		changesTopic = "portal.changes"
	}
	verifiedTopic := cfg.Kafka.VerifiedTopicName
	if verifiedTopic == "" {
		verifiedTopic = "payments.verified"
	}
	cacheTTL := time.Duration(cfg.Portal.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, []string{changesTopic, verifiedTopic}, consumerGroup)

	var gw gateway.Client
	switch cfg.Gateway.Mode {
	case "paystack":
		gw = paystackhttp.New(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey)
	default:
		gw = gatewayfake.New()
	}

	hub := feed.NewHub()
	shipmentsSvc := shipments.New(st, rc, producer, changesTopic, cacheTTL, cfg.Portal.FeePerKgMinor)
	notifierSvc := notifier.New(st, producer, changesTopic)
	supportSvc := support.New(st, producer, changesTopic)
	paymentsSvc := payments.New(st, st, gw, producer, changesTopic, cfg.Gateway.Mode)

	server := portalapi.New(shipmentsSvc, notifierSvc, supportSvc, paymentsSvc, hub, st)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &portalAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: portalAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			changesTopic:  changesTopic,
			verifiedTopic: verifiedTopic,
			consumerGroup: consumerGroup,
		},
		server:    server,
		shipments: shipmentsSvc,
		payments:  paymentsSvc,
		hub:       hub,
		consumer:  consumer,
		closeDB:   st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgportal.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgportal.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *portalAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *portalAPIApp) Run() error {
	return runPortalAPI(a.ctx, a.opts, a.server, a.shipments, a.payments, a.hub, a.consumer)
}
