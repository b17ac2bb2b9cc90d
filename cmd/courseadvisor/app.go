package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/courseadvisor/internal/db"
	"github.com/nkiryanov/courseadvisor/internal/handlers"
	"github.com/nkiryanov/courseadvisor/internal/handlers/middleware"
	"github.com/nkiryanov/courseadvisor/internal/logger"
	"github.com/nkiryanov/courseadvisor/internal/models"
	"github.com/nkiryanov/courseadvisor/internal/repository/postgres"
	"github.com/nkiryanov/courseadvisor/internal/service/auth"
	"github.com/nkiryanov/courseadvisor/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/courseadvisor/internal/service/catalog"
	"github.com/nkiryanov/courseadvisor/internal/service/chat"
	"github.com/nkiryanov/courseadvisor/internal/service/llm"
	"github.com/nkiryanov/courseadvisor/internal/service/prompt"
	"github.com/nkiryanov/courseadvisor/internal/service/tools"
	"github.com/nkiryanov/courseadvisor/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Catalog or its unavailable stand-in
type courseCatalog interface {
	Len() int
	FindByPrefix(ctx context.Context, prefix string) ([]models.Course, error)
}

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger            logger.Logger
	shutdownTelemetry telemetry.Shutdown
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: defaultServiceName,
		Endpoint:    c.OTelEndpoint,
		Insecure:    c.OTelInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("error while setting up telemetry. Err: %w", err)
	}

	// Auth
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.JWTSecret, AccessTTL: c.TokenTTL})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	secretStore, err := newSecretStore(c)
	if err != nil {
		return nil, err
	}
	if !secretStore.Configured() {
		logger.Warn("Universal password is not set, every login will fail")
	}
	authService, err := auth.NewService(auth.Config{}, tokenManager, secretStore)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Course dataset and tools
	courses := loadCatalog(ctx, c, logger)
	registry := tools.NewRegistry(tools.GetCourses{Courses: courses})

	prompts, err := prompt.NewBuilder(registry, tools.GetCoursesName)
	if err != nil {
		return nil, fmt.Errorf("error while preparing prompts. Err: %w", err)
	}

	model, err := llm.NewClient(llm.Config{
		BaseURL:   c.LLMBaseURL,
		Model:     c.LLMModel,
		APIKey:    c.LLMAPIKey,
		API:       c.LLMAPI,
		MaxTokens: c.LLMMaxTokens,
		Timeout:   c.LLMTimeout,
		Retry:     c.LLMRetry,
	}, logger.WithGroup("llm"))
	if err != nil {
		return nil, fmt.Errorf("error while creating model client. Err: %w", err)
	}

	trustedProxies, err := middleware.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil, err
	}

	chatService := chat.NewService(model, prompts, registry, logger.WithGroup("chat"))

	mux := handlers.NewRouter(
		authService,
		chatService,
		courses,
		handlers.RouterConfig{
			LoginRatePerMinute:    c.LoginRatePerMinute,
			LoginRateBurst:        c.LoginRateBurst,
			TrustedProxies:        trustedProxies,
			MaxConcurrentPerToken: c.MaxConcurrentPerToken,
		},
		logger,
	)

	return &ServerApp{
		ListenAddr:        c.ListenAddr,
		Handler:           otelhttp.NewHandler(mux, defaultServiceName),
		logger:            logger,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

func newSecretStore(c *Config) (*auth.SecretStore, error) {
	if c.UniversalPasswordHash != "" {
		s, err := auth.NewHashedSecretStore(auth.DefaultHasher, c.UniversalPasswordHash)
		if err != nil {
			return nil, fmt.Errorf("invalid universal password hash. Err: %w", err)
		}
		return s, nil
	}

	s, err := auth.NewSecretStore(auth.DefaultHasher, c.UniversalPassword)
	if err != nil {
		return nil, fmt.Errorf("invalid universal password. Err: %w", err)
	}
	return s, nil
}

// Load catalog once at start-up
// On failure the server still starts and every course lookup fails
func loadCatalog(ctx context.Context, c *Config, l logger.Logger) courseCatalog {
	cat, err := openCatalog(ctx, c)
	if err != nil {
		l.Error("Catalog is unavailable", "error", err.Error())
		return catalog.Unavailable{Err: err}
	}

	l.Info("Catalog loaded", "courses", cat.Len())
	return cat
}

func openCatalog(ctx context.Context, c *Config) (*catalog.Catalog, error) {
	opts := catalog.Options{OfferedOnly: c.CatalogOfferedOnly}

	if c.DatabaseDSN == "" {
		return catalog.LoadFile(c.CatalogPath, opts)
	}

	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	defer pool.Close()

	return catalog.Load(ctx, postgres.NewStorage(pool).Course(), opts)
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting server", "address", s.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")

		if err := s.shutdownTelemetry(timeoutCtx); err != nil {
			s.logger.Warn("Telemetry shutdown failed", "error", err.Error())
		}
		return nil
	})

	return g.Wait()
}
