// Package credentials persists the svhctl session token between runs.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// EnvToken overrides the stored token.
	EnvToken = "SVH_TOKEN"

	fileName = "token.json"
	// envTokenTTL is assumed for tokens passed through EnvToken, whose real
	// expiry is unknown.
	envTokenTTL = time.Hour
)

var ErrNotLoggedIn = errors.New("not logged in; run: svhctl login")

// Credentials is what a successful login leaves behind.
type Credentials struct {
	Token      string    `json:"token"`
	ExternalID string    `json:"external_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	// FromEnv marks credentials taken from EnvToken. They are never written.
	FromEnv bool `json:"-"`
}

// Expired reports whether the token is past its local expiry.
func (c *Credentials) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// FileStore keeps credentials in a JSON file readable only by its owner.
type FileStore struct {
	path   string
	getenv func(string) string
	now    func() time.Time
}

// DefaultPath is token.json under the user's config directory, for example
// ~/.config/svh/token.json on Linux.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "svh", fileName), nil
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, getenv: os.Getenv, now: time.Now}
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(c *Credentials) error {
	if c.FromEnv {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Load returns the token from EnvToken when set, else the stored one.
func (s *FileStore) Load() (*Credentials, error) {
	if tok := strings.TrimSpace(s.getenv(EnvToken)); tok != "" {
		return &Credentials{Token: tok, ExpiresAt: s.now().Add(envTokenTTL), FromEnv: true}, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil || c.Token == "" {
		return nil, ErrNotLoggedIn
	}
	return &c, nil
}

// Delete removes the stored credentials. A missing file is not an error.
func (s *FileStore) Delete() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
