package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/aquamarinepk/warden"
)

var ErrNoCredentials = errors.New("auth: admin credentials are not configured")

// Credentials is the single admin account.
type Credentials struct {
	User string
	hash []byte
	salt []byte
}

// NewCredentials builds credentials from base64 encoded hash and salt.
func NewCredentials(user, hash, salt string) (Credentials, error) {
	user = strings.TrimSpace(user)
	if user == "" || hash == "" || salt == "" {
		return Credentials{}, ErrNoCredentials
	}
	h, err := decode("password hash", hash)
	if err != nil {
		return Credentials{}, err
	}
	s, err := decode("password salt", salt)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{User: user, hash: h, salt: s}, nil
}

// CredentialsFromConfig reads admin.user, admin.password.hash and
// admin.password.salt.
func CredentialsFromConfig(cfg *warden.Config) (Credentials, error) {
	if cfg == nil {
		return Credentials{}, ErrNoCredentials
	}
	user, _ := cfg.GetString("admin.user")
	hash, _ := cfg.GetString("admin.password.hash")
	salt, _ := cfg.GetString("admin.password.salt")
	return NewCredentials(user, hash, salt)
}

// Verify checks a user and password pair.
func (c Credentials) Verify(user, password string) bool {
	if len(c.hash) == 0 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.User)) == 1
	passOK := VerifyPasswordHash([]byte(password), c.hash, c.salt)
	return userOK && passOK
}

// BasicAuth rejects requests without valid credentials with 401 and a
// WWW-Authenticate challenge for realm.
func BasicAuth(creds Credentials, realm string) func(http.Handler) http.Handler {
	if realm == "" {
		realm = "admin"
	}
	challenge := `Basic realm="` + strings.ReplaceAll(realm, `"`, "") + `", charset="UTF-8"`
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, password, ok := r.BasicAuth()
			if !ok || !creds.Verify(user, password) {
				w.Header().Set("WWW-Authenticate", challenge)
				warden.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
