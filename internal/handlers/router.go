package handlers

import (
	"context"
	"net/http"
	"net/netip"

	"github.com/nkiryanov/courseadvisor/internal/handlers/middleware"
	"github.com/nkiryanov/courseadvisor/internal/logger"
	"github.com/nkiryanov/courseadvisor/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Login attempts allowed per client IP
	LoginRatePerMinute int
	LoginRateBurst     int

	// Proxies allowed to report client address in X-Forwarded-For
	TrustedProxies []netip.Prefix

	// In-flight chat requests allowed per access token, 0 is unlimited
	MaxConcurrentPerToken int
}

func NewRouter(
	authService authService,
	chatService chatService,
	courses courseCounter,
	cfg RouterConfig,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(authService, logger)
	loginLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		PerMinute:      cfg.LoginRatePerMinute,
		Burst:          cfg.LoginRateBurst,
		TrustedProxies: cfg.TrustedProxies,
	})
	tokenLimiter := middleware.NewTokenLimiter(cfg.MaxConcurrentPerToken)

	authHandler := &AuthHandler{auth: authService, logger: logger}
	chatHandler := &ChatHandler{service: chatService, logger: logger}
	healthHandler := &HealthHandler{courses: courses}

	root := http.NewServeMux()

	root.Handle("POST /login", chain(http.HandlerFunc(authHandler.login), loginLimiter.Middleware))

	// Any method is routed here: unauthenticated requests get 401 before the method is checked
	root.Handle("/chat", chain(http.HandlerFunc(chatHandler.chat), authMiddleware, tokenLimiter.Middleware))

	root.Handle("GET /health", http.HandlerFunc(healthHandler.health))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Compare secret and issue access token
	// Has to return apperrors.ErrInvalidSecret if secret does not match
	// Has to return apperrors.ErrServerMisconfigured if there is no secret to compare with
	Login(ctx context.Context, secret string) (models.IssuedToken, error)

	// Set access token to response
	SetToken(w http.ResponseWriter, token models.IssuedToken)

	// Get request and return token claims if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.AuthClaims, error)
}

type chatService interface {
	// Reply to the message
	// Has to return apperrors.ErrTokenMissing or apperrors.ErrTokenExpired if claims are not valid
	Reply(ctx context.Context, claims models.AuthClaims, message string) (models.ConversationTurn, error)
}

type courseCounter interface {
	Len() int
}
