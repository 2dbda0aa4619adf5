package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
)

// SaltSize is the number of random bytes prepended to a password before hashing.
const SaltSize = 16

// Hash generates a fresh salt and returns the hex-encoded salt and
// SHA-256(salt || password) digest.
func Hash(password string) (saltHex, digestHex string, err error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", "", fmt.Errorf("read salt: %w", err)
	}
	return hex.EncodeToString(salt), hex.EncodeToString(digest(salt, password)), nil
}

// Verify recomputes the digest for password and compares it with digestHex
// in constant time. Malformed hex input never verifies.
func Verify(password, saltHex, digestHex string) bool {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(digestHex)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	return subtle.ConstantTimeCompare(digest(salt, password), want) == 1
}

func digest(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}
