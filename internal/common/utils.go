package common

import (
	"crypto/rand"
	"encoding/base64"
)

// MakeRandToken returns size random bytes encoded as unpadded URL-safe
// base64, suitable for query parameters and cookies.
func MakeRandToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WipeByteArray overwrites the contents of b with zeros. Used to drop
// plaintext passwords read from a terminal as soon as they are hashed.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
