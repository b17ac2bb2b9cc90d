package authctx

import (
	"context"

	"github.com/nkiryanov/courseadvisor/internal/models"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// Create a new context with validated token claims
func New(ctx context.Context, c models.AuthClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// Extract the claims from the context
func FromContext(ctx context.Context) (models.AuthClaims, bool) {
	c, ok := ctx.Value(claimsKey).(models.AuthClaims)
	return c, ok
}
