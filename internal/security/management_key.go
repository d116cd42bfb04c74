package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// managementKeyPrefix is the prefix used for generated management keys.
const managementKeyPrefix = "mgk_"

// bcryptCost defines the bcrypt work factor.
const bcryptCost = 12

// GenerateManagementKey creates a new random management key string.
func GenerateManagementKey() (string, error) {
	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate management key: %w", err)
	}
	return managementKeyPrefix + hex.EncodeToString(secret), nil
}

// HashManagementKey hashes a plaintext management key using bcrypt.
func HashManagementKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckManagementKey compares a bcrypt hash with a plaintext key.
func CheckManagementKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// HideKey obscures a credential for logging purposes, showing only the first
// and last few characters.
func HideKey(key string) string {
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	} else if len(key) > 4 {
		return key[:2] + "..." + key[len(key)-2:]
	} else if len(key) > 2 {
		return key[:1] + "..." + key[len(key)-1:]
	}
	return key
}
