package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Check reports whether claims carry every required permission.
// It reads the token snapshot only and never touches the grant store.
func Check(claims *shared.Claims, required ...string) error {
	if claims == nil || claims.Subject <= 0 {
		return ErrUnauthenticated
	}
	for _, perm := range required {
		if !claims.Permissions.Has(perm) {
			return ErrForbidden
		}
	}
	return nil
}

// CheckAny reports whether claims carry at least one of the required permissions.
// An empty requirement only demands an authenticated caller.
func CheckAny(claims *shared.Claims, required ...string) error {
	if claims == nil || claims.Subject <= 0 {
		return ErrUnauthenticated
	}
	if len(required) == 0 {
		return nil
	}
	for _, perm := range required {
		if claims.Permissions.Has(perm) {
			return nil
		}
	}
	return ErrForbidden
}

// GuardRecorder counts guard decisions.
type GuardRecorder interface {
	GuardDecision(decision string)
}

// Guard is the request-time enforcement middleware.
type Guard struct {
	Logger  *slog.Logger
	Metrics GuardRecorder
}

// RequireAll ensures the caller's token carries all required permissions.
func (g Guard) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return g.require(func(claims *shared.Claims) error { return Check(claims, required...) }, required)
}

// RequireAny ensures the caller's token carries at least one of the required permissions.
func (g Guard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return g.require(func(claims *shared.Claims) error { return CheckAny(claims, required...) }, required)
}

func (g Guard) require(check func(*shared.Claims) error, required []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := shared.ClaimsFromContext(r.Context())
			if err := check(claims); err != nil {
				g.deny(r, claims, required, err)
				RespondError(w, err)
				return
			}
			g.decision("allow")
			next.ServeHTTP(w, r)
		})
	}
}

func (g Guard) deny(r *http.Request, claims *shared.Claims, required []string, err error) {
	decision := "forbidden"
	if errors.Is(err, ErrUnauthenticated) {
		decision = "unauthenticated"
	}
	g.decision(decision)
	if g.Logger == nil {
		return
	}
	var subject int64
	if claims != nil {
		subject = claims.Subject
	}
	g.Logger.Warn("rbac guard denied",
		slog.String("decision", decision),
		slog.Int64("subject", subject),
		slog.String("path", r.URL.Path),
		slog.String("required", strings.Join(required, ",")))
}

func (g Guard) decision(decision string) {
	if g.Metrics != nil {
		g.Metrics.GuardDecision(decision)
	}
}

func normalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
