package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrHookNotFound is returned when a requested hook does not exist.
var ErrHookNotFound = errors.New("hook not found")

const manifestFile = "hook.json"

// Manager discovers hooks in a directory.
type Manager struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	hooks map[string]*Hook
}

// NewManager creates a Manager for dir.
func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dir:    dir,
		logger: logger.With("component", "hooks"),
		hooks:  make(map[string]*Hook),
	}
}

// Discover rescans the directory. Every subdirectory holding a valid
// hook.json is a hook; invalid ones are logged and skipped. A missing
// directory means no hooks.
func (m *Manager) Discover() error {
	hooks := make(map[string]*Hook)

	entries, err := os.ReadDir(m.dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read hooks dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(path, manifestFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			m.logger.Warn("skipping hook", "dir", path, "error", err)
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			m.logger.Warn("skipping hook with invalid manifest", "dir", path, "error", err)
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			m.logger.Warn("skipping hook without name or executable", "dir", path)
			continue
		}

		hooks[manifest.Name] = &Hook{
			Manifest:   manifest,
			Path:       path,
			Executable: filepath.Join(path, manifest.Executable),
		}
	}

	m.mu.Lock()
	m.hooks = hooks
	m.mu.Unlock()

	m.logger.Info("hooks discovered", "dir", m.dir, "count", len(hooks))
	return nil
}

// Get returns a hook by name.
func (m *Manager) Get(name string) (*Hook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hooks[name]
	if !ok {
		return nil, ErrHookNotFound
	}
	return h, nil
}

// List returns all hooks sorted by name.
func (m *Manager) List() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hooks := make([]*Hook, 0, len(m.hooks))
	for _, h := range m.hooks {
		hooks = append(hooks, h)
	}
	sort.Slice(hooks, func(i, j int) bool { return hooks[i].Manifest.Name < hooks[j].Manifest.Name })
	return hooks
}

// Subscribed returns the hooks subscribed to event, sorted by name.
func (m *Manager) Subscribed(event string) []*Hook {
	var out []*Hook
	for _, h := range m.List() {
		if h.Manifest.Matches(event) {
			out = append(out, h)
		}
	}
	return out
}

// Dir returns the hooks directory.
func (m *Manager) Dir() string {
	return m.dir
}
