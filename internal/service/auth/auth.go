package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/models"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"
)

type tokenManager interface {
	Issue() (models.IssuedToken, error)
	Parse(access string) (models.AuthClaims, error)
}

type secretChecker interface {
	// Must return apperrors.ErrServerMisconfigured if secret is not set
	// and apperrors.ErrInvalidSecret if secret does not match
	Check(provided string) error
}

type Config struct {
	// Header to read and write access token
	// If not set than default is used
	AccessHeaderName string

	// Auth scheme of the access header value
	// If not set than default is used
	AccessAuthScheme string
}

// Auth service: the gate in front of every protected call
// Stateless: validity is recomputed from the token itself on every request
type AuthService struct {
	accessHeaderName string
	accessAuthScheme string

	tokenManager tokenManager
	secret       secretChecker
}

func NewService(cfg Config, tokenManager tokenManager, secret secretChecker) (*AuthService, error) {
	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}

	return &AuthService{
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
		tokenManager:     tokenManager,
		secret:           secret,
	}, nil
}

// Login with the shared secret and get fresh access token
func (s *AuthService) Login(ctx context.Context, secret string) (models.IssuedToken, error) {
	if err := s.secret.Check(secret); err != nil {
		return models.IssuedToken{}, err
	}

	token, err := s.tokenManager.Issue()
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("token could not generated, sorry. Err: %w", err)
	}

	return token, nil
}

// Validate access token and return its claims
func (s *AuthService) Validate(ctx context.Context, access string) (models.AuthClaims, error) {
	return s.tokenManager.Parse(access)
}

// Auth reads access token from request and validates it
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.AuthClaims, error) {
	access, err := s.readAccess(r)
	if err != nil {
		return models.AuthClaims{}, err
	}

	return s.Validate(ctx, access)
}

// SetToken writes access token to response header
func (s *AuthService) SetToken(w http.ResponseWriter, token models.IssuedToken) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+token.Value)
}

func (s *AuthService) readAccess(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get(s.accessHeaderName))
	if header == "" {
		return "", apperrors.ErrTokenMissing
	}

	scheme, value, found := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, s.accessAuthScheme) {
		return "", apperrors.ErrTokenInvalid
	}
	// Scheme without credentials, e.g. "Bearer " with trailing space trimmed
	if !found {
		return "", apperrors.ErrTokenMissing
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.ErrTokenMissing
	}

	return value, nil
}
