package api

import (
	"context"
	"net/http"
	"strings"

	"coursecast/internal/apperr"
	"coursecast/internal/auth"
	"coursecast/internal/models"
)

type contextKey string

const claimsContextKey contextKey = "authenticatedClaims"

// ContextWithClaims stores verified token claims in the provided context.
func ContextWithClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext retrieves verified token claims from context if present.
func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(auth.Claims)
	return claims, ok
}

// ExtractToken pulls the bearer token from the Authorization header.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth verifies the bearer token and stores its claims in the request
// context before invoking next.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			writeError(w, apperr.New(apperr.Unauthorized, "authentication required"))
			return
		}
		claims, err := h.Tokens.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

func (h *Handler) requireClaims(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Unauthorized, "authentication required"))
		return auth.Claims{}, false
	}
	return claims, true
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role models.Role) (auth.Claims, bool) {
	claims, ok := h.requireClaims(w, r)
	if !ok {
		return auth.Claims{}, false
	}
	if claims.Role != role {
		writeError(w, apperr.Newf(apperr.PermissionDenied, "this action requires the %s role", role))
		return auth.Claims{}, false
	}
	return claims, true
}
