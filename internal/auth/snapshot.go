package auth

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Resolver computes the effective role and permission names of a user.
type Resolver interface {
	EffectiveRoles(ctx context.Context, userID int64) ([]string, error)
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// SnapshotResolver resolves both claim sets from one consistent view of the grant store.
type SnapshotResolver interface {
	ResolveSnapshot(ctx context.Context, userID int64) (roles, perms []string, err error)
}

// Snapshotter freezes a user's roles and permissions into token claims.
// The claims are never re-evaluated; token expiry bounds their staleness.
type Snapshotter struct {
	resolver Resolver
}

// NewSnapshotter constructs a Snapshotter.
func NewSnapshotter(resolver Resolver) *Snapshotter {
	return &Snapshotter{resolver: resolver}
}

// Snapshot resolves both claim sets at one instant when the resolver supports it.
// Other resolvers are read concurrently; a grant committed between the two reads
// may then appear in only one of the sets.
func (s *Snapshotter) Snapshot(ctx context.Context, userID int64, sessionID string) (*shared.Claims, error) {
	if consistent, ok := s.resolver.(SnapshotResolver); ok {
		roles, perms, err := consistent.ResolveSnapshot(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve snapshot: %w", err)
		}
		return newClaims(userID, sessionID, roles, perms), nil
	}

	var roles, perms []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roles, err = s.resolver.EffectiveRoles(gctx, userID)
		if err != nil {
			return fmt.Errorf("resolve roles: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		perms, err = s.resolver.EffectivePermissions(gctx, userID)
		if err != nil {
			return fmt.Errorf("resolve permissions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return newClaims(userID, sessionID, roles, perms), nil
}

func newClaims(userID int64, sessionID string, roles, perms []string) *shared.Claims {
	return &shared.Claims{
		Subject:     userID,
		SessionID:   sessionID,
		Roles:       append([]string{}, roles...),
		Permissions: shared.NewPermissionSet(perms),
	}
}
