package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/handlers/authctx"
	"github.com/nkiryanov/courseadvisor/internal/handlers/render"
	"github.com/nkiryanov/courseadvisor/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.AuthClaims, error)
}

type authLogger interface {
	Debug(msg string, args ...any)
}

// AuthMiddleware rejects requests without valid access token before they reach the handler
// Validated claims are put into the request context
func AuthMiddleware(as authService, l authLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := as.Auth(r.Context(), r)
			if err != nil {
				l.Debug("Request not authorized", "uri", r.RequestURI, "reason", authFailure(err))
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := authctx.New(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Reason is logged only, clients always get the same response
func authFailure(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrTokenMissing):
		return "missing"
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "expired"
	default:
		return "invalid"
	}
}
