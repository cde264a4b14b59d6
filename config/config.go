package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	ListenAddr string `json:"listenAddr"`
	LogFile    string `json:"logFile,omitempty"`
}

// LoaderSettings configures the remote loader client.
type LoaderSettings struct {
	BaseURL       string `json:"baseUrl"`
	CacheDir      string `json:"cacheDir"`
	CacheTTLHours int    `json:"cacheTtlHours"`
}

// PublishSettings configures the publish sink and its journal.
type PublishSettings struct {
	SinkURL     string `json:"sinkUrl,omitempty"`
	JournalPath string `json:"journalPath,omitempty"`
}

// Settings is the persisted application configuration.
type Settings struct {
	Server  ServerSettings  `json:"server"`
	Loader  LoaderSettings  `json:"loader"`
	Publish PublishSettings `json:"publish"`
}

// DefaultSettings returns the configuration used when no settings file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			ListenAddr: ":7790",
		},
		Loader: LoaderSettings{
			BaseURL:       "http://localhost:7791",
			CacheDir:      filepath.Join(os.TempDir(), "mediavault-cache"),
			CacheTTLHours: 24,
		},
	}
}

// Manager loads and saves the JSON settings file, caching the last good copy.
type Manager struct {
	mu     sync.Mutex
	path   string
	cached *Settings
}

// NewManager creates a manager for the settings file at path. The file is not
// read until Load is called.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads the settings file, filling in defaults for missing fields. A
// missing file yields defaults without error so first boot works unattended.
func (m *Manager) Load() (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return m.cached, nil
	}

	settings := DefaultSettings()
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.cached = settings
			return settings, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	applyDefaults(settings)
	m.cached = settings
	return settings, nil
}

// Save writes the settings file atomically and refreshes the cache.
func (m *Manager) Save(settings *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	m.cached = settings
	return nil
}

func applyDefaults(s *Settings) {
	def := DefaultSettings()
	if s.Server.ListenAddr == "" {
		s.Server.ListenAddr = def.Server.ListenAddr
	}
	if s.Loader.BaseURL == "" {
		s.Loader.BaseURL = def.Loader.BaseURL
	}
	if s.Loader.CacheDir == "" {
		s.Loader.CacheDir = def.Loader.CacheDir
	}
	if s.Loader.CacheTTLHours <= 0 {
		s.Loader.CacheTTLHours = def.Loader.CacheTTLHours
	}
}
