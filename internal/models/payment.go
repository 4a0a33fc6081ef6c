package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "Completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusAbandoned = "abandoned"
)

// Payment: суммы храним в минорных единицах (копейки/центы).
type Payment struct {
	ID         uint64
	UserID     uint64
	ShipmentID *uint64

	AmountMinor int64
	Currency    string
	Status      string

	PaymentMethod   string
	PaymentProvider string
	Reference       string
	TransactionID   *string

	VerifyFailCount int32
	NextVerifyAt    time.Time
	LastError       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
