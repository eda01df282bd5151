package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/repo"
	"taskdesk/internal/token"
)

// Principal is the authenticated caller. The role is resolved from the
// identity row on every request, never from the token, so a role change
// takes effect on the next call.
type Principal struct {
	ID   string
	Role domain.Role
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok && p.ID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthenticated", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func publicPaths(basePath string) map[string]bool {
	pub := map[string]bool{}
	for _, p := range []string{
		"health",
		"auth/signup",
		"auth/login",
		"auth/refresh",
		"auth/logout",
		"openapi.json",
	} {
		pub[path.Join(basePath, p)] = true
	}
	return pub
}

// newAuthMiddleware verifies the bearer access token and installs the
// Principal. Auth endpoints and health pass through unauthenticated.
func newAuthMiddleware(basePath string, e *engine.Engine) func(http.Handler) http.Handler {
	pub := publicPaths(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if pub[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthenticated", "authentication required", nil))
				return
			}
			raw, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthenticated", "invalid authorization header", nil))
				return
			}
			subject, err := e.Tokens.VerifyAccess(raw)
			if err != nil {
				code := "unauthenticated"
				if errors.Is(err, token.ErrTokenExpired) {
					code = "token_expired"
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, code, "invalid or expired token", nil))
				return
			}
			id, err := e.Repo.GetIdentity(req.Context(), subject)
			if err != nil {
				if errors.Is(err, repo.ErrIdentityNotFound) {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthenticated", "unknown identity", nil))
					return
				}
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
				return
			}
			ctx := withPrincipal(req.Context(), Principal{ID: id.ID, Role: id.Role})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
