package payments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/broker/messages"
	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeVerifyProducer struct {
	topic string
	key   []byte
	value []byte
	calls int
	err   error
}

func (p *fakeVerifyProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.calls++
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func (p *fakeVerifyProducer) verdict(t *testing.T) messages.PaymentVerified {
	t.Helper()
	var pv messages.PaymentVerified
	require.NoError(t, json.Unmarshal(p.value, &pv))
	return pv
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

type fakeGateway struct {
	res gateway.VerifyResult
	err error
}

func (g fakeGateway) Initialize(ctx context.Context, in gateway.InitializeInput) (gateway.InitResult, error) {
	return gateway.InitResult{}, nil
}
func (g fakeGateway) Verify(ctx context.Context, reference string) (gateway.VerifyResult, error) {
	return g.res, g.err
}

type fakeClaimRepo struct {
	calls int
	out   []*models.Payment
}

func (r *fakeClaimRepo) ClaimDuePayments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Payment, error) {
	r.calls++
	return r.out, nil
}

func TestVerifier_processOne_successPublishes(t *testing.T) {
	txID := "4099"
	fp := &fakeVerifyProducer{}
	v := NewVerifier(nil, fakeGateway{
		res: gateway.VerifyResult{Status: gateway.StatusSuccess, TransactionID: &txID},
	}, fp, fakeRL{allowed: true}, "payments.verified")

	p := &models.Payment{ID: 42, Reference: "ref-42", CreatedAt: time.Now().UTC()}
	require.NoError(t, v.processOne(context.Background(), p))
	require.Equal(t, 1, fp.calls)
	require.Equal(t, "payments.verified", fp.topic)

	pv := fp.verdict(t)
	require.EqualValues(t, 42, pv.PaymentID)
	require.Equal(t, gateway.StatusSuccess, pv.Status)
	require.NotNil(t, pv.TransactionID)
	require.Nil(t, pv.Error)
}

func TestVerifier_processOne_pendingReschedules(t *testing.T) {
	fp := &fakeVerifyProducer{}
	v := NewVerifier(nil, fakeGateway{
		res: gateway.VerifyResult{Status: gateway.StatusPending},
	}, fp, nil, "payments.verified")

	p := &models.Payment{ID: 1, Reference: "ref-1", CreatedAt: time.Now().UTC()}
	require.NoError(t, v.processOne(context.Background(), p))

	pv := fp.verdict(t)
	require.Equal(t, gateway.StatusPending, pv.Status)
	require.WithinDuration(t, time.Now().UTC().Add(time.Minute), pv.NextVerifyAt, 5*time.Second)
}

func TestVerifier_processOne_stalePendingAbandoned(t *testing.T) {
	fp := &fakeVerifyProducer{}
	v := NewVerifier(nil, fakeGateway{
		res: gateway.VerifyResult{Status: gateway.StatusPending},
	}, fp, nil, "payments.verified").WithAbandonAfter(24 * time.Hour)

	p := &models.Payment{ID: 1, Reference: "ref-1", CreatedAt: time.Now().UTC().Add(-25 * time.Hour)}
	require.NoError(t, v.processOne(context.Background(), p))
	require.Equal(t, gateway.StatusAbandoned, fp.verdict(t).Status)
}

func TestVerifier_processOne_errorBackoff(t *testing.T) {
	fp := &fakeVerifyProducer{}
	v := NewVerifier(nil, fakeGateway{err: errors.New("boom")}, fp, nil, "payments.verified")

	p := &models.Payment{ID: 1, Reference: "ref-1", VerifyFailCount: 1, CreatedAt: time.Now().UTC()}
	require.NoError(t, v.processOne(context.Background(), p))

	pv := fp.verdict(t)
	require.NotNil(t, pv.Error)
	require.Empty(t, pv.Status)
	// второй фейл подряд: отступ 15 минут
	require.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), pv.NextVerifyAt, 5*time.Second)
}

func TestVerifier_WithSettings(t *testing.T) {
	fp := &fakeVerifyProducer{}
	v := NewVerifier(nil, fakeGateway{}, fp, nil, "t").
		WithSettings(5*time.Second, 7, 9, 11*time.Second, 13)
	require.Equal(t, 5*time.Second, v.pollInterval)
	require.Equal(t, 7, v.batchSize)
	require.Equal(t, 9, v.concurrency)
	require.Equal(t, 11*time.Second, v.lease)
	require.Equal(t, int64(13), v.rateLimitPerMinute)
}

func TestVerifier_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeClaimRepo{}
	v := NewVerifier(repo, fakeGateway{}, &fakeVerifyProducer{}, nil, "t").
		WithSettings(5*time.Millisecond, 1, 1, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := v.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.calls, 1)
}

func TestVerifier_TriggerAndStats(t *testing.T) {
	repo := &fakeClaimRepo{}
	v := NewVerifier(repo, fakeGateway{}, &fakeVerifyProducer{}, nil, "t").
		WithSettings(time.Hour, 1, 1, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = v.Run(ctx) }()

	v.Trigger()
	require.Eventually(t, func() bool { return v.Stats().LastCycleAt != nil }, time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, repo.calls, 1)
	require.NotNil(t, v.Stats().LastTriggerAt)
}
