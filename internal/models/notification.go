package models

import "time"

type Notification struct {
	ID      uint64
	UserID  uint64
	Title   string
	Content string
	IsRead  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
