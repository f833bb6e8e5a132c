package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// apiKeyPrefix marks ingestion keys so they are recognizable in logs and configs.
const apiKeyPrefix = "emk_"

// GenerateRandomString returns a URL-safe random string built from n random bytes.
func GenerateRandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("security: invalid random length %d", n)
	}
	buf := make([]byte, n)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("security: read random: %w", errRead)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateAPIKey returns a new application ingestion key and its storage hash.
func GenerateAPIKey() (key string, hash string, err error) {
	random, errRandom := GenerateRandomString(32)
	if errRandom != nil {
		return "", "", errRandom
	}
	key = apiKeyPrefix + random
	return key, HashAPIKey(key), nil
}

// HashAPIKey returns the hex SHA-256 of an ingestion key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// APIKeyDisplayPrefix returns the part of key that is safe to show in listings.
func APIKeyDisplayPrefix(key string) string {
	const visible = len(apiKeyPrefix) + 6
	if len(key) <= visible {
		return key
	}
	return key[:visible]
}
