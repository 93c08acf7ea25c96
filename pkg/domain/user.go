package domain

import "time"

// User represents a bot user, created on first contact
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	CreatedAt time.Time
}
