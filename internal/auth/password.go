// Package auth wraps the one-way password digest used for credentials.
// Digests are produced and checked here and nowhere else; they must never
// appear in responses or logs.
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a salted bcrypt digest from a plaintext password.
func HashPassword(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// CheckPassword reports whether the plaintext password matches the digest.
func CheckPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
