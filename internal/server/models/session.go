package models

import "time"

// Session binds the hash of an issued token to an account. Rows are never
// deleted; logout flips IsActive and stamps LoggedOutAt.
type Session struct {
	ID          string
	AccountID   string
	TokenHash   string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LoggedOutAt *time.Time
	IsActive    bool
}
