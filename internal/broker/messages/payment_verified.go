package messages

import "time"

// PaymentVerified — итог проверки платёжной ссылки воркером.
// Status — вердикт шлюза: "success" | "failed" | "abandoned" | "pending".
type PaymentVerified struct {
	PaymentID uint64    `json:"payment_id"`
	Reference string    `json:"reference"`
	CheckedAt time.Time `json:"checked_at"`

	Status        string  `json:"status,omitempty"`
	TransactionID *string `json:"transaction_id,omitempty"`

	NextVerifyAt time.Time `json:"next_verify_at"`

	Error *string `json:"error,omitempty"`
}
