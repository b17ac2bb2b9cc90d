package middleware

import (
	"net/http"
	"sync"

	"github.com/nkiryanov/courseadvisor/internal/handlers/authctx"
	"github.com/nkiryanov/courseadvisor/internal/handlers/render"
)

// TokenLimiter bounds in-flight requests made with the same access token
// Has to run after AuthMiddleware, requests without claims pass through
type TokenLimiter struct {
	mu       sync.Mutex
	max      int
	inFlight map[string]int
}

// Zero max means unlimited
func NewTokenLimiter(max int) *TokenLimiter {
	return &TokenLimiter{max: max, inFlight: make(map[string]int)}
}

func (l *TokenLimiter) Middleware(next http.Handler) http.Handler {
	if l.max <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authctx.FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if !l.acquire(claims.TokenID) {
			render.ServiceError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		defer l.release(claims.TokenID)

		next.ServeHTTP(w, r)
	})
}

func (l *TokenLimiter) acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight[key] >= l.max {
		return false
	}
	l.inFlight[key]++
	return true
}

func (l *TokenLimiter) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight[key]--
	if l.inFlight[key] <= 0 {
		delete(l.inFlight, key)
	}
}
