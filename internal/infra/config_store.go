package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// FileConfigStore implements domain.ConfigStore using a JSON file that is
// replaced whole on every save.
type FileConfigStore struct {
	path   string
	logger *zap.Logger

	mu  sync.RWMutex
	cfg *domain.Config
}

// NewFileConfigStore creates a store for the given file. Call Load before use.
func NewFileConfigStore(path string, logger *zap.Logger) *FileConfigStore {
	return &FileConfigStore{
		path:   path,
		logger: logger,
		cfg:    domain.DefaultConfig(),
	}
}

// Path returns the config file path.
func (s *FileConfigStore) Path() string {
	return s.path
}

// Load reads the file. A missing file yields the default config; an
// unreadable one is moved aside to <path>.corrupt first. Never fails.
func (s *FileConfigStore) Load() *domain.Config {
	cfg, err := s.read()
	switch {
	case err == nil:
		if normalize(cfg) {
			if err := s.Save(cfg); err != nil {
				s.logger.Warn("failed to persist assigned item ids", zap.Error(err))
			}
		}
	case errors.Is(err, os.ErrNotExist):
		cfg = domain.DefaultConfig()
		if err := s.Save(cfg); err != nil {
			s.logger.Warn("failed to write default config", zap.String("path", s.path), zap.Error(err))
		}
	default:
		s.logger.Warn("config file unreadable, using defaults",
			zap.String("path", s.path),
			zap.Error(err))
		if rerr := os.Rename(s.path, s.path+".corrupt"); rerr != nil {
			s.logger.Warn("failed to keep corrupt config aside", zap.Error(rerr))
		}
		cfg = domain.DefaultConfig()
		if err := s.Save(cfg); err != nil {
			s.logger.Warn("failed to write default config", zap.String("path", s.path), zap.Error(err))
		}
	}

	s.set(cfg)
	return cfg.Clone()
}

// Reload re-reads the file. On any error the previous snapshot is kept.
func (s *FileConfigStore) Reload() error {
	cfg, err := s.read()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	normalize(cfg)
	s.set(cfg)
	return nil
}

// Save writes cfg atomically and makes it the current snapshot.
func (s *FileConfigStore) Save(cfg *domain.Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := atomicWrite(s.path, data); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	s.set(cfg)
	return nil
}

// Snapshot returns a deep copy of the current config.
func (s *FileConfigStore) Snapshot() *domain.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update re-reads the file under an exclusive lock shared with other
// processes, applies fn, and saves only if fn succeeds.
func (s *FileConfigStore) Update(fn func(cfg *domain.Config) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	lf, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lf.Close()

	if err := lockFile(lf); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = unlockFile(lf) }()

	cfg, err := s.read()
	if err != nil {
		// Another writer may have left nothing yet; fall back to what we hold.
		cfg = s.Snapshot()
	} else {
		normalize(cfg)
	}

	if err := fn(cfg); err != nil {
		return err
	}
	return s.Save(cfg)
}

func (s *FileConfigStore) read() (*domain.Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var cfg domain.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config %s: %w", s.path, err)
	}
	return &cfg, nil
}

func (s *FileConfigStore) set(cfg *domain.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
}

// normalize fills absent fields in place and reports whether item IDs were assigned.
func normalize(cfg *domain.Config) bool {
	assigned := false
	if cfg.Items == nil {
		cfg.Items = []domain.SupervisionItem{}
	}
	if cfg.GlobalBlacklist == nil {
		cfg.GlobalBlacklist = []domain.BlacklistEntry{}
	}
	if cfg.TomatoDurationSeconds <= 0 {
		cfg.TomatoDurationSeconds = domain.DefaultTomatoDurationSeconds
	}
	for i := range cfg.Items {
		if cfg.Items[i].ID == "" {
			cfg.Items[i].ID = uuid.NewString()
			assigned = true
		}
		if cfg.Items[i].Blacklist == nil {
			cfg.Items[i].Blacklist = []domain.BlacklistEntry{}
		}
	}
	return assigned
}

// atomicWrite writes data to path atomically (write + rename).
func atomicWrite(path string, data []byte) error {
	// Unique per process to avoid racing another writer's temp file
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileConfigStore implements domain.ConfigStore.
var _ domain.ConfigStore = (*FileConfigStore)(nil)
