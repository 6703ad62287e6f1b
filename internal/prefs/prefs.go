// Package prefs persists the panel client's session preferences: the bearer token and
// the selected API environment.
package prefs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the preferences file inside the client state directory.
const FileName = "prefs.yaml"

// Environment selects which configured API base URL the client uses.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvLocal      Environment = "local"
)

// ErrInvalidEnvironment is returned for anything other than production or local.
var ErrInvalidEnvironment = errors.New(`environment must be "production" or "local"`)

// ParseEnvironment validates a user-supplied environment name.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvProduction, EnvLocal:
		return Environment(s), nil
	default:
		return "", ErrInvalidEnvironment
	}
}

// Prefs is the on-disk document.
type Prefs struct {
	Token       string      `yaml:"token,omitempty"`
	AdminEmail  string      `yaml:"admin_email,omitempty"`
	Environment Environment `yaml:"environment,omitempty"`
}

// Store reads and writes one preferences file. Safe for concurrent use within a process.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a Store backed by dir/prefs.yaml. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// DefaultDir is $PANEL_STATE_DIR when set, otherwise the user config directory.
func DefaultDir() (string, error) {
	if dir := os.Getenv("PANEL_STATE_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "promptpanel"), nil
}

// Path returns the preferences file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored preferences, or zero Prefs when the file does not exist yet.
func (s *Store) Load() (Prefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Prefs, error) {
	var p Prefs
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read preferences %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}
	return p, nil
}

// Update applies fn to the current preferences and writes the result atomically.
func (s *Store) Update(fn func(*Prefs)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.load()
	if err != nil {
		return err
	}
	fn(&p)
	return s.save(p)
}

// save writes to a temp file in the same directory and renames it over the target,
// so a crash never leaves a truncated file.
func (s *Store) save(p Prefs) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp preferences file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	slog.Debug("prefs.Store.save: preferences written", "path", s.path)
	return nil
}

// Token returns the stored bearer token.
func (s *Store) Token() (string, error) {
	p, err := s.Load()
	return p.Token, err
}

// SetSession stores the token and the email it was issued for.
func (s *Store) SetSession(token, email string) error {
	return s.Update(func(p *Prefs) {
		p.Token = token
		p.AdminEmail = email
	})
}

// ClearToken forgets the session, keeping the environment choice.
func (s *Store) ClearToken() error {
	return s.Update(func(p *Prefs) {
		p.Token = ""
		p.AdminEmail = ""
	})
}

// SetEnvironment persists the environment used by the next client session.
func (s *Store) SetEnvironment(env Environment) error {
	if _, err := ParseEnvironment(string(env)); err != nil {
		return err
	}
	return s.Update(func(p *Prefs) {
		p.Environment = env
	})
}
