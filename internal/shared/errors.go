package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionRevoked is returned for tokens whose login session was ended.
	ErrSessionRevoked = errors.New("session revoked")
)
