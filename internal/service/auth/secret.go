package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
)

// Interface to create or compare secret hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Holds the shared access secret
// Only the hash is kept in memory so comparison never touches the plain secret
type SecretStore struct {
	hash   string
	hasher PasswordHasher
}

// NewSecretStore hashes the plain secret once at start-up
// Empty secret is allowed: the store then reports the server as misconfigured on every check
func NewSecretStore(hasher PasswordHasher, secret string) (*SecretStore, error) {
	if hasher == nil {
		hasher = DefaultHasher
	}

	s := &SecretStore{hasher: hasher}
	if secret == "" {
		return s, nil
	}

	hash, err := hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("can't use this as secret. Err: %w", err)
	}
	s.hash = hash

	return s, nil
}

// NewHashedSecretStore uses a precomputed hash (see cmd/gensecret)
func NewHashedSecretStore(hasher PasswordHasher, hash string) (*SecretStore, error) {
	if hasher == nil {
		hasher = DefaultHasher
	}

	hash = strings.TrimSpace(hash)
	if hash != "" && !strings.HasPrefix(hash, "$2") {
		return nil, errors.New("secret hash must be bcrypt hash")
	}

	return &SecretStore{hash: hash, hasher: hasher}, nil
}

// Configured reports whether the shared secret is set
func (s *SecretStore) Configured() bool {
	return s != nil && s.hash != ""
}

// Check compares provided secret with the stored one
func (s *SecretStore) Check(provided string) error {
	if !s.Configured() {
		return apperrors.ErrServerMisconfigured
	}

	if err := s.hasher.Compare(s.hash, provided); err != nil {
		return apperrors.ErrInvalidSecret
	}

	return nil
}
