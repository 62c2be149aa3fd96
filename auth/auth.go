// Package auth checks the single configured account of a lexdoc deployment
// and issues the deterministic bearer token clients present on upload.
//
// The token is hex(sha256(username + ":" + password + ":" + secret)). It
// carries no expiry; rotating the secret revokes every token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultSecret is used when no secret is configured.
const DefaultSecret = "default-secret-change-me"

var (
	// ErrMissingCredentials is returned when the request omits the username
	// or the password.
	ErrMissingCredentials = errors.New("auth: username and password required")
	// ErrInvalidCredentials is returned on mismatch, and when the server has
	// no account configured.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// Verifier holds the configured account. Password and PasswordHash are
// alternatives; PasswordHash (bcrypt) wins when both are set.
type Verifier struct {
	Username     string
	Password     string
	PasswordHash string
	Secret       string

	mu     sync.RWMutex
	issued map[string]struct{}
}

// Configured reports whether an account is set up at all.
func (v *Verifier) Configured() bool {
	return v.Username != "" && (v.Password != "" || v.PasswordHash != "")
}

// Verify checks username and password against the configured account.
func (v *Verifier) Verify(username, password string) error {
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	if !v.Configured() {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.Username)) == 1
	var passOK bool
	if v.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(v.Password)) == 1
	}
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies the credentials and returns the token, remembering it so
// Valid accepts it even when only a password hash is configured.
func (v *Verifier) Login(username, password string) (string, error) {
	if err := v.Verify(username, password); err != nil {
		return "", err
	}
	tok := Token(username, password, v.secret())
	v.mu.Lock()
	if v.issued == nil {
		v.issued = make(map[string]struct{})
	}
	v.issued[tok] = struct{}{}
	v.mu.Unlock()
	return tok, nil
}

// Valid reports whether tok is the token of the configured account.
func (v *Verifier) Valid(tok string) bool {
	if tok == "" || !v.Configured() {
		return false
	}
	if v.Password != "" && v.PasswordHash == "" {
		want := Token(v.Username, v.Password, v.secret())
		return subtle.ConstantTimeCompare([]byte(tok), []byte(want)) == 1
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	for known := range v.issued {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(known)) == 1 {
			return true
		}
	}
	return false
}

// UsesDefaultSecret reports whether tokens are signed with DefaultSecret.
func (v *Verifier) UsesDefaultSecret() bool {
	return v.secret() == DefaultSecret
}

func (v *Verifier) secret() string {
	if v.Secret == "" {
		return DefaultSecret
	}
	return v.Secret
}

// Token returns hex(sha256(username:password:secret)).
func Token(username, password, secret string) string {
	sum := sha256.Sum256([]byte(username + ":" + password + ":" + secret))
	return hex.EncodeToString(sum[:])
}

// HashPassword returns a bcrypt hash suitable for PasswordHash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
