package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chui/internal/utils"
)

// Session is what a signed-in CLI keeps between invocations.
type Session struct {
	Server    string    `json:"server"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
}

func (s *Session) token() string {
	if s == nil {
		return ""
	}
	return s.Token
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionFile persists one Session as JSON on disk.
type SessionFile struct {
	Path string
}

// DefaultSessionPath is ~/.chui/session.json.
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".chui", "session.json"), nil
}

// Load returns the stored session, or an UNAUTHORIZED error when there is
// none.
func (f SessionFile) Load() (*Session, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, utils.NewUnauthorizedError("not signed in, run `chui login` first")
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", f.Path, err)
	}
	if s.Token == "" {
		return nil, utils.NewUnauthorizedError("not signed in, run `chui login` first")
	}
	return &s, nil
}

func (f SessionFile) Save(s *Session) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

// Clear removes the session file. A missing file is not an error.
func (f SessionFile) Clear() error {
	err := os.Remove(f.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// SessionInfo is a Session without its token, safe to print.
type SessionInfo struct {
	Server    string    `json:"server"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
}

func (s *Session) Public() SessionInfo {
	return SessionInfo{Server: s.Server, ExpiresAt: s.ExpiresAt, UserID: s.UserID, Username: s.Username}
}
