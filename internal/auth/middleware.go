package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Authenticator verifies bearer tokens and places their claims in the request context.
// Requests without a usable bearer token (missing, unverifiable or for an ended session)
// pass through anonymously; the enforcement guard decides whether the route needs one.
type Authenticator struct {
	Issuer   *TokenIssuer
	Sessions Sessions
	Logger   *slog.Logger
}

// Middleware returns the HTTP middleware.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.Issuer.Verify(raw)
		if err != nil {
			a.anonymous(w, r, next, "invalid token", err)
			return
		}
		if a.Sessions != nil {
			active, err := a.Sessions.Active(r.Context(), claims.SessionID, claims.Subject)
			if err != nil {
				if a.Logger != nil {
					a.Logger.Error("session lookup", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusServiceUnavailable, "Session Store Unavailable", "")
				return
			}
			if !active {
				a.anonymous(w, r, next, "session ended", shared.ErrSessionRevoked)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithClaims(r.Context(), claims)))
	})
}

// anonymous serves the request without claims. A 401 further down carries the invalid_token challenge.
func (a Authenticator) anonymous(w http.ResponseWriter, r *http.Request, next http.Handler, reason string, err error) {
	if a.Logger != nil {
		a.Logger.Debug("bearer token ignored", slog.String("reason", reason), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	next.ServeHTTP(challengeWriter{ResponseWriter: w}, r)
}

type challengeWriter struct {
	http.ResponseWriter
}

func (w challengeWriter) WriteHeader(status int) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w challengeWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
