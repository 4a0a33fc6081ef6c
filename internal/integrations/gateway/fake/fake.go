package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
)

// FakeClient — заглушка платёжного шлюза для dev-окружения. Вердикт
// детерминирован хэшем reference, чтобы один и тот же платёж всегда
// проходил одинаково.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Initialize(ctx context.Context, in gateway.InitializeInput) (gateway.InitResult, error) {
	return gateway.InitResult{
		AuthorizationURL: fmt.Sprintf("https://checkout.fake.local/%s", in.Reference),
		AccessCode:       "fake_" + in.Reference,
	}, nil
}

func (f *FakeClient) Verify(ctx context.Context, reference string) (gateway.VerifyResult, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(reference))
	v := h.Sum32()

	// ~10% платежей падают, ~10% бросаются, остальные успешны.
	status := gateway.StatusSuccess
	switch v % 10 {
	case 0:
		status = gateway.StatusFailed
	case 1:
		status = gateway.StatusAbandoned
	}

	out := gateway.VerifyResult{
		Status:          status,
		GatewayResponse: "fake gateway verdict",
	}
	if status == gateway.StatusSuccess {
		id := fmt.Sprintf("fake-%d", v)
		now := time.Now().UTC()
		out.TransactionID = &id
		out.PaidAt = &now
	}
	return out, nil
}
