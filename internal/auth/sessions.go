package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "odyssey:session:"

// SessionRegistry tracks live login sessions in Redis so logout can cut a token
// short of its expiry. Entries expire together with the token they belong to.
type SessionRegistry struct {
	client *redis.Client
}

// NewSessionRegistry constructs a registry backed by client.
func NewSessionRegistry(client *redis.Client) *SessionRegistry {
	return &SessionRegistry{client: client}
}

// NewSessionID returns a random session identifier used as the token jti.
func NewSessionID() string {
	return uuid.NewString()
}

// Register records a live session for userID until ttl elapses.
func (r *SessionRegistry) Register(ctx context.Context, id string, userID int64, ttl time.Duration) error {
	return r.client.Set(ctx, sessionKeyPrefix+id, strconv.FormatInt(userID, 10), ttl).Err()
}

// Active reports whether the session is still registered for userID.
func (r *SessionRegistry) Active(ctx context.Context, id string, userID int64) (bool, error) {
	if id == "" {
		return false, nil
	}
	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return val == strconv.FormatInt(userID, 10), nil
}

// Revoke removes the session. Revoking an unknown session is not an error.
func (r *SessionRegistry) Revoke(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
