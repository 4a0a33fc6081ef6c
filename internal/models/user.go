package models

import "time"

type User struct {
	ID      uint64
	Email   string
	Name    string
	IsAdmin bool

	CreatedAt time.Time
}

// Actor — кто выполняет операцию. Zero value = гость.
type Actor struct {
	UserID  uint64
	IsAdmin bool
}

func (a Actor) IsGuest() bool { return a.UserID == 0 && !a.IsAdmin }
