// Package localstate persists the last authenticated identity across
// process restarts, so the client can reopen a session without prompting.
package localstate

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"novachat/internal/domain"
)

type Cache struct {
	path string
	log  *slog.Logger
}

func New(path string, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{path: path, log: log}
}

// Load returns the cached identity, or nil when there is none. A file that
// no longer parses is cleared and treated as absent.
func (c *Cache) Load() (*domain.Identity, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var id domain.Identity
	if err := json.Unmarshal(data, &id); err != nil || id.Username == "" {
		c.log.Warn("discarding unreadable identity cache", "path", c.path, "error", err)
		_ = c.Clear()
		return nil, nil
	}
	if id.SavedContacts == nil {
		id.SavedContacts = []string{}
	}
	return &id, nil
}

func (c *Cache) Save(id domain.Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(c.path, data, 0o600)
}

// Clear forgets the cached identity. Used on explicit logout.
func (c *Cache) Clear() error {
	err := os.Remove(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
