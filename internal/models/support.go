package models

import "time"

const (
	ConversationStatusOpen   = "open"
	ConversationStatusClosed = "closed"
)

// Perspective — чья сторона читает тред. Флаги прочтения раздельные:
// клиент помечает прочитанными сообщения админа и наоборот.
type Perspective string

const (
	PerspectiveCustomer Perspective = "customer"
	PerspectiveAdmin    Perspective = "admin"
)

type Conversation struct {
	ID         uint64
	UserID     *uint64
	GuestEmail *string
	Title      string
	Status     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type SupportMessage struct {
	ID             uint64
	ConversationID uint64
	SenderID       *uint64
	IsAdmin        bool
	Content        string

	GuestName  *string
	GuestEmail *string

	ReadByCustomer bool
	ReadByAdmin    bool

	CreatedAt time.Time
}
