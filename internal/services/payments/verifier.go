package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/broker/messages"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/pkg/errors"
)

type ClaimRepository interface {
	ClaimDuePayments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Payment, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Verifier опрашивает шлюз по pending-платежам и публикует вердикты в
// Kafka. Сам платёж он не трогает: вердикт применяет portal-api,
// прочитав сообщение.
type Verifier struct {
	repo     ClaimRepository
	gw       gateway.Client
	producer Producer
	rl       RateLimiter

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	abandonAfter       time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func NewVerifier(repo ClaimRepository, gw gateway.Client, producer Producer, rl RateLimiter, topic string) *Verifier {
	return &Verifier{
		repo: repo, gw: gw, producer: producer, rl: rl, topic: topic,
		planner:            NewPlanner(DefaultPlannerConfig()),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		abandonAfter:       24 * time.Hour,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (v *Verifier) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Verifier {
	if pollInterval > 0 {
		v.pollInterval = pollInterval
	}
	if batchSize > 0 {
		v.batchSize = batchSize
	}
	if concurrency > 0 {
		v.concurrency = concurrency
	}
	if lease > 0 {
		v.lease = lease
	}
	if rlPerMin > 0 {
		v.rateLimitPerMinute = rlPerMin
	}
	return v
}

func (v *Verifier) WithPlanner(cfg PlannerConfig) *Verifier {
	v.planner = NewPlanner(cfg)
	return v
}

// WithAbandonAfter задаёт окно, после которого нерешённый pending
// считается брошенным покупателем.
func (v *Verifier) WithAbandonAfter(d time.Duration) *Verifier {
	if d > 0 {
		v.abandonAfter = d
	}
	return v
}

// Trigger forces an immediate verify cycle (best-effort, non-blocking).
func (v *Verifier) Trigger() {
	v.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case v.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (v *Verifier) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, v.startedAtUnixNano).UTC(),
		TotalClaimed:   v.totalClaimed.Load(),
		TotalProcessed: v.totalProcessed.Load(),
		TotalErrors:    v.totalErrors.Load(),
		InFlight:       v.inFlight.Load(),
	}
	if n := v.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := v.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	v.lastErrorMu.Lock()
	st.LastError = v.lastError
	v.lastErrorMu.Unlock()
	return st
}

func (v *Verifier) Run(ctx context.Context) error {
	t := time.NewTicker(v.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			v.runOnce(ctx)
		case <-v.triggerCh:
			v.runOnce(ctx)
		}
	}
}

func (v *Verifier) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	v.lastCycleUnixNano.Store(now.UnixNano())

	items, err := v.repo.ClaimDuePayments(ctx, now, v.batchSize, v.lease)
	if err != nil {
		slog.Error("claim due payments", "error", err.Error())
		v.lastErrorMu.Lock()
		v.lastError = err.Error()
		v.lastErrorMu.Unlock()
		return
	}
	v.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, v.concurrency)
	var wg sync.WaitGroup
	for _, p := range items {
		sem <- struct{}{}
		wg.Add(1)
		pCopy := p
		v.inFlight.Add(1)
		go func() {
			defer func() {
				v.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := v.processOne(ctx, pCopy); err != nil {
				v.totalErrors.Add(1)
				v.lastErrorMu.Lock()
				v.lastError = err.Error()
				v.lastErrorMu.Unlock()
				slog.Error("verify payment", "payment_id", pCopy.ID, "error", err.Error())
			}
			v.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (v *Verifier) processOne(ctx context.Context, p *models.Payment) error {
	now := time.Now().UTC()

	if v.rl != nil && v.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:gateway:%s", now.Format("200601021504"))
		allowed, n, err := v.rl.Allow(ctx, minuteKey, v.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Шлюз режет по запросам в минуту, притормозим.
			slog.Warn("gateway rate limit exceeded", "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	res, err := v.gw.Verify(ctx, p.Reference)
	msg := messages.PaymentVerified{
		PaymentID: p.ID,
		Reference: p.Reference,
		CheckedAt: now,
	}

	if err != nil {
		e := err.Error()
		msg.Error = &e
		nextFail := p.VerifyFailCount + 1
		msg.NextVerifyAt = now.Add(v.planner.BackoffDelay(nextFail))
	} else {
		msg.Status = res.Status
		msg.TransactionID = res.TransactionID
		if res.Status == gateway.StatusPending {
			if now.Sub(p.CreatedAt) >= v.abandonAfter {
				// Покупатель так и не довёл оплату до конца.
				msg.Status = gateway.StatusAbandoned
			} else {
				msg.NextVerifyAt = now.Add(v.planner.PendingRetryDelay())
			}
		}
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(fmt.Sprintf("%d", p.ID))
	// Kafka может быть не готова сразу после старта docker compose.
	// Для устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := v.producer.Publish(ctx, v.topic, key, b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}
