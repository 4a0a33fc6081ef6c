package gateway

import (
	"context"
	"time"
)

// Статусы транзакции на стороне шлюза.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusPending   = "pending"
	StatusAbandoned = "abandoned"
)

type InitializeInput struct {
	Reference   string
	AmountMinor int64
	Currency    string
	Email       string
}

type InitResult struct {
	AuthorizationURL string
	AccessCode       string
}

type VerifyResult struct {
	Status          string
	TransactionID   *string
	PaidAt          *time.Time
	GatewayResponse string
}

type Client interface {
	Initialize(ctx context.Context, in InitializeInput) (InitResult, error)
	Verify(ctx context.Context, reference string) (VerifyResult, error)
}
