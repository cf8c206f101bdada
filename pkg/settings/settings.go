// Package settings serves site-wide presentation settings from a YAML
// file, hot-reloaded on change so edits go live without a restart.
package settings

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/campuscms/campuscms/pkg/observability"
)

// Site holds the presentation settings rendered by the public site
type Site struct {
	SiteName     string            `yaml:"site_name" json:"site_name"`
	Tagline      string            `yaml:"tagline" json:"tagline"`
	ContactEmail string            `yaml:"contact_email" json:"contact_email"`
	ContactPhone string            `yaml:"contact_phone" json:"contact_phone"`
	Address      string            `yaml:"address" json:"address"`
	FooterText   string            `yaml:"footer_text" json:"footer_text"`
	SocialLinks  map[string]string `yaml:"social_links" json:"social_links,omitempty"`

	// Banner shows a site-wide notice (maintenance, deadlines) when set
	Banner string `yaml:"banner" json:"banner,omitempty"`
}

// Manager loads the settings file and keeps the in-memory copy current
type Manager struct {
	path   string
	logger *observability.Logger

	mu      sync.RWMutex
	current Site
}

// NewManager loads the settings file. A missing path yields defaults
// with no file watching.
func NewManager(path string, logger *observability.Logger) (*Manager, error) {
	m := &Manager{
		path:   path,
		logger: logger,
		current: Site{
			SiteName: "College Website",
		},
	}

	if path == "" {
		return m, nil
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Current returns a copy of the active settings
func (m *Manager) Current() Site {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Watch reloads the file on filesystem changes until the context is
// cancelled. No-op when no settings path is configured.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	if err := watcher.Add(m.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch settings file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := m.reload(); err != nil {
					// Keep serving the last good settings.
					m.logger.WithError(err).Warn("failed to reload site settings")
					continue
				}
				m.logger.WithField("path", m.path).Info("site settings reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.WithError(err).Warn("settings watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (m *Manager) reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var site Site
	if err := yaml.Unmarshal(data, &site); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}
	if site.SiteName == "" {
		return fmt.Errorf("settings file must set site_name")
	}

	m.mu.Lock()
	m.current = site
	m.mu.Unlock()
	return nil
}
