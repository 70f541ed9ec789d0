// Package auth verifies login credentials and carries the resulting session.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any failed login. It deliberately
// does not say whether the username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Authenticator checks username/password pairs against a read-only
// credential map.
type Authenticator struct {
	credentials map[string]string
}

// NewAuthenticator creates an Authenticator over a copy of credentials.
func NewAuthenticator(credentials map[string]string) *Authenticator {
	copied := make(map[string]string, len(credentials))
	for user, pass := range credentials {
		copied[user] = pass
	}
	return &Authenticator{credentials: copied}
}

// Enabled returns true if at least one credential is configured.
func (a *Authenticator) Enabled() bool {
	return len(a.credentials) > 0
}

// Verify succeeds iff username exists and its stored value matches password.
// Stored values with a bcrypt prefix are compared as hashes; everything else
// must match exactly.
func (a *Authenticator) Verify(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}

	stored, ok := a.credentials[username]
	if !ok {
		return ErrInvalidCredentials
	}

	if isBcryptHash(stored) {
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) != nil {
			return ErrInvalidCredentials
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 &&
		(strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
