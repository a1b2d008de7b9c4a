// Package auth implements the admin gate: a shared-secret check that
// authorizes the mutating operations (upload, delete). There is no lockout
// and no rate limiting; a successful check issues a bearer token for the
// rest of the session.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Gate validates the admin secret and tracks issued session tokens.
// When a bcrypt hash is configured it takes precedence over the plaintext
// secret; otherwise the comparison is plain equality.
type Gate struct {
	password     string
	passwordHash string
	sessionTTL   time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
}

// NewGate creates a gate. password is the plaintext shared secret;
// passwordHash, when non-empty, must be a bcrypt hash of the secret.
func NewGate(password, passwordHash string, sessionTTL time.Duration) *Gate {
	return &Gate{
		password:     password,
		passwordHash: passwordHash,
		sessionTTL:   sessionTTL,
		sessions:     make(map[string]time.Time),
	}
}

// Authenticate checks the supplied secret and, on success, issues a session
// token valid for the configured TTL.
func (g *Gate) Authenticate(secret string) (string, bool) {
	if !g.check(secret) {
		slog.Warn("Admin authentication failed", "reason", "wrong password")
		return "", false
	}

	token := uuid.NewString()
	g.mu.Lock()
	g.sessions[token] = time.Now().Add(g.sessionTTL)
	g.mu.Unlock()

	slog.Info("Admin authenticated successfully")
	return token, true
}

func (g *Gate) check(secret string) bool {
	if g.passwordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(g.passwordHash), []byte(secret)) == nil
	}
	if g.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(g.password), []byte(secret)) == 1
}

// Authorized reports whether the token belongs to a live admin session.
// Expired tokens are dropped on sight.
func (g *Gate) Authorized(token string) bool {
	if token == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	expiry, ok := g.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(g.sessions, token)
		slog.Debug("Admin session expired", "token", token)
		return false
	}
	return true
}

// Revoke invalidates a session token (logout).
func (g *Gate) Revoke(token string) {
	g.mu.Lock()
	delete(g.sessions, token)
	g.mu.Unlock()
}

// HashPassword produces a bcrypt hash suitable for the gate's hash mode.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}
