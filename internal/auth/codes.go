package auth

import (
	"fmt"
	"strings"
	"sync"

	"trackdrop/internal/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Scope names what an access code unlocks
type Scope string

const (
	// ScopeUpload allows creating albums
	ScopeUpload Scope = "upload"
	// ScopeEditor allows editing and deleting albums
	ScopeEditor Scope = "editor"
)

// ParseScope converts a client-supplied scope name
func ParseScope(s string) (Scope, bool) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeUpload:
		return ScopeUpload, true
	case ScopeEditor:
		return ScopeEditor, true
	}
	return "", false
}

// AccessCodes verifies access codes against bcrypt hashes. Hashes can be
// swapped at runtime with Reload.
type AccessCodes struct {
	mu     sync.RWMutex
	hashes map[Scope][]byte
	logger *logrus.Logger
}

// NewAccessCodes builds a verifier from the access section of the config
func NewAccessCodes(cfg *config.AccessConfig, logger *logrus.Logger) *AccessCodes {
	ac := &AccessCodes{logger: logger}
	ac.Reload(cfg)
	return ac
}

// Reload replaces the stored hashes. Values that are not bcrypt hashes are
// ignored and leave their scope locked.
func (ac *AccessCodes) Reload(cfg *config.AccessConfig) {
	hashes := make(map[Scope][]byte, 2)
	for scope, hash := range map[Scope]string{
		ScopeUpload: cfg.UploadCodeHash,
		ScopeEditor: cfg.EditorCodeHash,
	} {
		if hash == "" {
			ac.logger.WithField("scope", scope).Warn("No access code configured, scope is locked")
			continue
		}
		if !isBcryptHash(hash) {
			ac.logger.WithField("scope", scope).Error("Access code hash is not a bcrypt hash, scope is locked")
			continue
		}
		hashes[scope] = []byte(hash)
	}

	ac.mu.Lock()
	ac.hashes = hashes
	ac.mu.Unlock()
}

// Enabled reports whether a code is configured for scope
func (ac *AccessCodes) Enabled(scope Scope) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	_, ok := ac.hashes[scope]
	return ok
}

// Verify reports whether code matches the hash configured for scope.
// Unknown scopes, unconfigured scopes and empty codes never match.
func (ac *AccessCodes) Verify(scope Scope, code string) bool {
	if code == "" {
		return false
	}

	ac.mu.RLock()
	hash, ok := ac.hashes[scope]
	ac.mu.RUnlock()
	if !ok {
		return false
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil
}

// HashCode returns the bcrypt hash to place in the config for code
func HashCode(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("access code cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash access code: %w", err)
	}
	return string(hash), nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
