package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	apiKeyPrefix   = "crk_"
	apiKeyBytes    = 32
	refreshBytes   = 32
	displayedChars = 12
)

// Digest returns the hex SHA-256 of a secret token. Only digests are stored.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateAPIKey returns the plaintext key, its display prefix and its digest.
func GenerateAPIKey() (key, prefix, digest string, err error) {
	body, err := randomToken(apiKeyBytes)
	if err != nil {
		return "", "", "", err
	}
	key = apiKeyPrefix + body
	return key, key[:displayedChars], Digest(key), nil
}

// GenerateRefreshToken returns an opaque refresh token and its digest.
func GenerateRefreshToken() (token, digest string, err error) {
	token, err = randomToken(refreshBytes)
	if err != nil {
		return "", "", err
	}
	return token, Digest(token), nil
}
