package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/AuroraCargo/CargoPort/config"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	gatewayfake "github.com/AuroraCargo/CargoPort/internal/integrations/gateway/fake"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/AuroraCargo/CargoPort/internal/services/payments"
	"github.com/stretchr/testify/require"
)

type fakeClaimRepo struct{}

func (r *fakeClaimRepo) ClaimDuePayments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Payment, error) {
	return []*models.Payment{}, nil
}

type noopProducer struct{}

func (noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func testFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (payments.ClaimRepository, func(), error) {
			return &fakeClaimRepo{}, nil, nil
		},
		newProducer:    func(cfg *config.Config) payments.Producer { return noopProducer{} },
		newRateLimiter: func(cfg *config.Config) payments.RateLimiter { return nil },
		newGatewayClient: func(cfg *config.Config) gateway.Client {
			return gatewayfake.New()
		},
	}
}

func TestRunPaymentWorker_StopsOnContextCancel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Portal.WorkerPollIntervalSeconds = 1
	cfg.Portal.WorkerHTTPAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := RunPaymentWorker(ctx, cfg, testFactories())
	require.Error(t, err)
}

func TestWorkerHTTPServer_StatsAndTrigger(t *testing.T) {
	v := payments.NewVerifier(&fakeClaimRepo{}, gatewayfake.New(), noopProducer{}, nil, "t").
		WithSettings(time.Hour, 1, 1, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = v.Run(ctx) }()

	cfg := &config.Config{}
	cfg.Portal.WorkerBatchSize = 7
	cfg.Gateway.Mode = "fake"

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
			verifier: v,
			cfg:      cfg,
		})
	}()

	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "startedAt")

	resp, err = http.Post("http://"+addr+"/trigger", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Contains(t, string(body), "triggered")

	require.Eventually(t, func() bool { return v.Stats().LastTriggerAt != nil }, time.Second, 10*time.Millisecond)

	resp, err = http.Get("http://" + addr + "/config")
	require.NoError(t, err)
	var cfgOut map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfgOut))
	_ = resp.Body.Close()
	require.EqualValues(t, 7, cfgOut["batchSize"])
	require.Equal(t, "fake", cfgOut["gatewayMode"])

	cancel()
	require.Error(t, <-errCh)
}
