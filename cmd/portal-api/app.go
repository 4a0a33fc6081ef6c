package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/api/portalapi"
	"github.com/AuroraCargo/CargoPort/internal/broker/messages"
	"github.com/AuroraCargo/CargoPort/internal/feed"
	"github.com/AuroraCargo/CargoPort/internal/services/payments"
	"github.com/AuroraCargo/CargoPort/internal/services/shipments"
	httpSwagger "github.com/swaggo/http-swagger"
)

type portalAPIOpts struct {
	httpAddr    string
	swaggerPath string

	changesTopic  string
	verifiedTopic string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(topic string, key, value []byte) error) error
}

func runPortalAPI(
	ctx context.Context,
	opts portalAPIOpts,
	server *portalapi.Server,
	shipmentsSvc *shipments.Service,
	paymentsSvc *payments.Service,
	hub *feed.Hub,
	consumer kafkaConsumer,
) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	go func() {
		slog.Info("kafka consumer started",
			"topics", []string{opts.changesTopic, opts.verifiedTopic},
			"group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(topic string, _key, value []byte) error {
			switch topic {
			case opts.verifiedTopic:
				var pv messages.PaymentVerified
				if err := json.Unmarshal(value, &pv); err != nil {
					return err
				}
				return paymentsSvc.ApplyVerified(ctx, pv)
			default:
				var rc messages.RowChanged
				if err := json.Unmarshal(value, &rc); err != nil {
					return err
				}
				// Кеш освежаем до fan-out: подписчик, перечитавший
				// строку по сигналу, должен увидеть её новой.
				if err := shipmentsSvc.ApplyRowChanged(ctx, rc); err != nil {
					return err
				}
				hub.Publish(feed.Change{
					Table:          rc.Table,
					Op:             feed.Op(rc.Op),
					RowID:          rc.RowID,
					At:             rc.At,
					UserID:         rc.UserID,
					ShipmentID:     rc.ShipmentID,
					ConversationID: rc.ConversationID,
				})
				return nil
			}
		})
	}()

	r := server.Router()

	r.Get("/swagger.json", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, req, opts.swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
