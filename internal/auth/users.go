package auth

import (
	"crypto/subtle"
	"errors"
	"os"
	"strings"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords alike
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore validates login credentials against an in-memory table.
// Intended for single-tenant deployments; a database-backed store can
// replace it behind the same Validate method.
type UserStore struct {
	credentials map[string]string
}

// NewUserStore creates a store with the given username/password pairs
func NewUserStore(credentials map[string]string) *UserStore {
	store := &UserStore{credentials: make(map[string]string)}
	for username, password := range credentials {
		store.credentials[username] = password
	}
	return store
}

// NewUserStoreFromEnv seeds the store from AUTH_USERS, a comma-separated
// list of username:password pairs.
func NewUserStoreFromEnv() (*UserStore, error) {
	raw := os.Getenv("AUTH_USERS")
	if raw == "" {
		return nil, errors.New("AUTH_USERS environment variable is required")
	}

	credentials := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		username, password, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found || username == "" || password == "" {
			return nil, errors.New("AUTH_USERS entries must be username:password pairs")
		}
		credentials[username] = password
	}

	return NewUserStore(credentials), nil
}

// Validate checks a username/password pair
func (s *UserStore) Validate(username, password string) error {
	stored, ok := s.credentials[username]
	if !ok {
		// Compare against the input anyway so lookup misses cost the
		// same as password mismatches.
		subtle.ConstantTimeCompare([]byte(password), []byte(password))
		return ErrInvalidCredentials
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
