package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"callcenter-service/internal/domain"
	"callcenter-service/pkg/response"
	"callcenter-service/pkg/xerrors"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const ContextPrincipal contextKey = "principal"

// Authenticator resolves a bearer token to the calling account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Principal, error)
}

type AuthMiddleware struct {
	auth   Authenticator
	logger *zap.Logger
}

func NewAuthMiddleware(auth Authenticator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, logger: logger}
}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, ContextPrincipal, p)
}

func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(ContextPrincipal).(domain.Principal)
	return p, ok
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Require rejects requests without a valid token for an existing account.
func (am *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			response.ErrorWithDetail(w, r, http.StatusUnauthorized, "no token provided", "unauthenticated", nil)
			return
		}
		p, err := am.auth.Authenticate(r.Context(), token)
		switch {
		case errors.Is(err, xerrors.ErrUnauthenticated):
			am.logger.Debug("authentication failed", zap.String("path", r.URL.Path), zap.Error(err))
			response.ErrorWithDetail(w, r, http.StatusUnauthorized, "invalid or expired token", "unauthenticated", nil)
			return
		case err != nil:
			am.logger.Error("authentication lookup failed",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			response.ErrorWithDetail(w, r, http.StatusInternalServerError, "internal server error", "internal", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *p)))
	})
}

// RequireRole must run after Require.
func (am *AuthMiddleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				response.ErrorWithDetail(w, r, http.StatusUnauthorized, "authentication required", "unauthenticated", nil)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			am.logger.Info("role check failed",
				zap.String("account_id", p.AccountID),
				zap.String("role", string(p.Role)),
				zap.String("path", r.URL.Path))
			response.ErrorWithDetail(w, r, http.StatusForbidden, "insufficient role", "forbidden", nil)
		})
	}
}
