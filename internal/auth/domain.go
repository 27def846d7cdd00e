package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Subject     int64     `json:"subject"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}
