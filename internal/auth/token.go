package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// ErrInvalidToken is returned for tokens that fail signature, issuer or expiry checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// MaxTokenTTL bounds how long a permission snapshot may stay in circulation.
const MaxTokenTTL = 24 * time.Hour

type tokenClaims struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens carrying the claim snapshot.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer validates the settings and returns an issuer.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret required")
	}
	if ttl <= 0 || ttl > MaxTokenTTL {
		return nil, fmt.Errorf("auth: token ttl must be within (0, %s]", MaxTokenTTL)
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source, used by tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	clone := *t
	clone.now = now
	return &clone
}

// TTL reports the snapshot staleness window.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue signs claims. IssuedAt and ExpiresAt are filled from the issuer clock.
func (t *TokenIssuer) Issue(claims *shared.Claims) (string, error) {
	now := t.now().UTC().Truncate(time.Second)
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Roles:       claims.Roles,
		Permissions: claims.Permissions.Names(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(claims.Subject, 10),
			Issuer:    t.issuer,
			ID:        claims.SessionID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	return token.SignedString(t.secret)
}

// Verify parses a token and returns its snapshot claims.
func (t *TokenIssuer) Verify(raw string) (*shared.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	subject, err := strconv.ParseInt(parsed.Subject, 10, 64)
	if err != nil || subject <= 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	claims := &shared.Claims{
		Subject:     subject,
		SessionID:   parsed.ID,
		Roles:       parsed.Roles,
		Permissions: shared.NewPermissionSet(parsed.Permissions),
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return claims, nil
}
