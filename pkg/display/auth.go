package display

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordFileName is the file looked up under the user config directory by
// DefaultPasswordFile.
const PasswordFileName = "broadway.passwd"

// Authenticator verifies connection passwords against a bcrypt hash. A nil
// Authenticator or one without a hash accepts everything. The hash can be
// swapped at runtime, which the daemon uses for password-file hot reload.
type Authenticator struct {
	mu   sync.RWMutex
	hash []byte
}

// NewAuthenticator returns an authenticator holding the given bcrypt hash.
// An empty hash disables authentication.
func NewAuthenticator(hash string) *Authenticator {
	a := &Authenticator{}
	a.SetHash(hash)
	return a
}

// Enabled reports whether a password is required.
func (a *Authenticator) Enabled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.hash) > 0
}

// SetHash replaces the bcrypt hash. An empty string disables
// authentication.
func (a *Authenticator) SetHash(hash string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if hash == "" {
		a.hash = nil
		return
	}
	a.hash = []byte(hash)
}

// Verify reports whether password matches the stored hash. With
// authentication disabled it accepts everything.
func (a *Authenticator) Verify(password string) bool {
	if a == nil {
		return true
	}
	a.mu.RLock()
	hash := a.hash
	a.mu.RUnlock()
	if len(hash) == 0 {
		return true
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// HashPassword produces a bcrypt hash suitable for the password file.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("display: refusing to hash an empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("display: hash password: %w", err)
	}
	return string(hash), nil
}

// LoadPasswordFile reads a bcrypt hash from the first line of path. A
// missing file means authentication is disabled and returns "".
func LoadPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("display: read password file: %w", err)
	}
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line), nil
}

// DefaultPasswordFile returns the per-user password file location,
// ~/.config/broadway.passwd on most systems.
func DefaultPasswordFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("display: locate config dir: %w", err)
	}
	return filepath.Join(dir, PasswordFileName), nil
}
