package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
	"github.com/nkiryanov/courseadvisor/internal/models"
)

const (
	defaultAccessTokenTTL = 7 * 24 * time.Hour
	defaultSigningMethod  = "HS256"
)

// Access token payload
// The single custom claim marks the token as an authenticated session
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Authenticated bool `json:"auth"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access token lifetime
	// If not set than default is used
	AccessTTL time.Duration
}

type TokenManager struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access token lifetime
	accessTTL time.Duration

	// Clock, replaced in tests
	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing method %q is not supported", cfg.Alg)
	}

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}

	return &TokenManager{
		key:       cfg.SecretKey,
		alg:       alg,
		accessTTL: cfg.AccessTTL,
		now:       time.Now,
	}, nil
}

// TTL returns configured access token lifetime
func (m *TokenManager) TTL() time.Duration {
	return m.accessTTL
}

// Issue signed access token
func (m *TokenManager) Issue() (models.IssuedToken, error) {
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Authenticated: true,
		},
	)
	access, err := token.SignedString([]byte(m.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
// Signature is verified before any claim is looked at, so tampered tokens are always ErrTokenInvalid
func (m *TokenManager) Parse(access string) (models.AuthClaims, error) {
	if access == "" {
		return models.AuthClaims{}, apperrors.ErrTokenMissing
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.AuthClaims{}, fmt.Errorf("%w. Err: %w", apperrors.ErrTokenExpired, err)
	default:
		return models.AuthClaims{}, fmt.Errorf("%w. Err: %w", apperrors.ErrTokenInvalid, err)
	}

	if !claims.Authenticated {
		return models.AuthClaims{}, fmt.Errorf("%w. Err: session claim not set", apperrors.ErrTokenInvalid)
	}

	result := models.AuthClaims{
		TokenID:       claims.ID,
		ExpiresAt:     claims.ExpiresAt.Time,
		Authenticated: true,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}

	return result, nil
}
