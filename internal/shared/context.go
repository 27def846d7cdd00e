package shared

import (
	"context"
	"sort"
	"time"
)

// PermissionSet is the permission-name claim set carried by a token.
// Lookups do not allocate.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from permission names, dropping blanks and duplicates.
func NewPermissionSet(names []string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Has reports whether name is part of the set.
func (p PermissionSet) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Names returns the set members sorted.
func (p PermissionSet) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Claims is the point-in-time snapshot embedded in an issued token.
type Claims struct {
	Subject     int64
	SessionID   string
	Roles       []string
	Permissions PermissionSet
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type claimsContextKey struct{}

// ContextWithClaims stores verified token claims in context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts the verified claims, nil when the request is anonymous.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}
