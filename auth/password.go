// Package auth guards the admin surface with HTTP basic auth backed by
// argon2id password hashes.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength = 32
	keyLength  = 32
)

func GeneratePasswordSalt() []byte {
	salt := make([]byte, saltLength)
	_, _ = rand.Read(salt)
	return salt
}

func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, keyLength)
}

func VerifyPasswordHash(password, hash, salt []byte) bool {
	derived := argon2.IDKey(password, salt, 1, 64*1024, 4, keyLength)
	return subtle.ConstantTimeCompare(derived, hash) == 1
}

// EncodePassword hashes password with a fresh salt and returns both base64
// encoded, ready for admin.password.hash and admin.password.salt.
func EncodePassword(password string) (hash, salt string) {
	s := GeneratePasswordSalt()
	h := HashPassword([]byte(password), s)
	return base64.StdEncoding.EncodeToString(h), base64.StdEncoding.EncodeToString(s)
}

func decode(field, value string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("auth: %s is not valid base64: %w", field, err)
	}
	return b, nil
}
