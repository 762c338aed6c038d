// Package password hashes and verifies user credentials with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword indicates an attempt to hash a blank password.
var ErrEmptyPassword = errors.New("password.empty")

// Hash derives a salted bcrypt hash from the plaintext. The plaintext is
// never stored or logged.
func Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("password.hash: %w", ErrEmptyPassword)
	}
	hashed, hashErr := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if hashErr != nil {
		return "", fmt.Errorf("password.hash: %w", hashErr)
	}
	return string(hashed), nil
}

// Verify reports whether the submitted plaintext matches the stored hash.
// bcrypt's comparison is constant-time; a mismatch is a plain false, never
// an error, so callers decide how to surface it.
func Verify(plaintext string, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}
