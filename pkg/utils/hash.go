package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashOrRead hashes a node secret unless it is already a bcrypt digest,
// which lets operators provision either plaintext or pre-hashed secrets.
func HashOrRead(secret string) ([]byte, error) {
	if strings.HasPrefix(secret, "$2a$") || strings.HasPrefix(secret, "$2b$") || strings.HasPrefix(secret, "$2y$") {
		return []byte(secret), nil // already bcrypt
	}
	return bcrypt.GenerateFromPassword([]byte(secret), 10)
}

// CheckSecret compares a stored bcrypt digest against a candidate secret.
func CheckSecret(hash []byte, candidate string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(candidate)) == nil
}
