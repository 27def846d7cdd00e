package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Sessions is the live-session store consulted on logout and token verification.
type Sessions interface {
	Register(ctx context.Context, id string, userID int64, ttl time.Duration) error
	Active(ctx context.Context, id string, userID int64) (bool, error)
	Revoke(ctx context.Context, id string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo        Repository
	snapshotter *Snapshotter
	issuer      *TokenIssuer
	sessions    Sessions
	logger      *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, snapshotter *Snapshotter, issuer *TokenIssuer, sessions Sessions, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, snapshotter: snapshotter, issuer: issuer, sessions: sessions, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("auth find user", slog.Any("error", err))
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the user and issues a token carrying a snapshot of the
// user's roles and permissions at this instant.
func (s *Service) Login(ctx context.Context, email, password, ip, ua string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	sessionID := NewSessionID()
	claims, err := s.snapshotter.Snapshot(ctx, user.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("auth: snapshot: %w", err)
	}
	token, err := s.issuer.Issue(claims)
	if err != nil {
		return nil, fmt.Errorf("auth: issue token: %w", err)
	}
	if err := s.sessions.Register(ctx, sessionID, user.ID, s.issuer.TTL()); err != nil {
		return nil, fmt.Errorf("auth: register session: %w", err)
	}
	if err := s.repo.CreateSession(ctx, sessionID, user.ID, claims.ExpiresAt, ip, ua); err != nil {
		s.logger.Warn("record session", slog.Any("error", err))
	}
	s.logger.Info("login",
		slog.Int64("user_id", user.ID),
		slog.Int("roles", len(claims.Roles)),
		slog.Int("permissions", len(claims.Permissions)))
	return &LoginResult{
		Token:       token,
		ExpiresAt:   claims.ExpiresAt,
		Subject:     user.ID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions.Names(),
	}, nil
}

// Logout ends the session behind claims. Grants are untouched.
func (s *Service) Logout(ctx context.Context, claims *shared.Claims) error {
	if claims == nil || claims.SessionID == "" {
		return shared.ErrSessionRevoked
	}
	if err := s.sessions.Revoke(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	if err := s.repo.EndSession(ctx, claims.SessionID); err != nil {
		s.logger.Warn("end session", slog.Any("error", err))
	}
	return nil
}
