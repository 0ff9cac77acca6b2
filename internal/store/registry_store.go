package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ccswitch/internal/model"
	"ccswitch/internal/platform"
)

var (
	// ErrNotInitialized is returned when no registry file exists yet.
	ErrNotInitialized = errors.New("account registry not initialized")
	// ErrValidation wraps any structural problem found before a document
	// is persisted or after one is read.
	ErrValidation = errors.New("registry validation failed")
	// ErrUnknownSchema marks a document version this build cannot handle.
	ErrUnknownSchema = errors.New("unknown registry schema version")
)

// RegistryStore owns the registry file. Loads migrate legacy documents and
// serve cached copies; saves validate and replace the file atomically.
type RegistryStore struct {
	mu     sync.RWMutex
	path   string
	log    *slog.Logger
	cached *model.Registry
}

func NewRegistryStore(dataDir string, log *slog.Logger) *RegistryStore {
	if log == nil {
		log = slog.Default()
	}
	return &RegistryStore{path: platform.RegistryPath(dataDir), log: log}
}

func (s *RegistryStore) Path() string {
	return s.path
}

func (s *RegistryStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns an independent copy of the on-disk document, upgrading the
// file first when it carries an older schema version.
func (s *RegistryStore) Load() (*model.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *RegistryStore) loadLocked() (*model.Registry, error) {
	if s.cached != nil {
		return s.cached.Clone(), nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}

	var reg model.Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrValidation, s.path, err)
	}

	if reg.SchemaVersion != model.SchemaVersion {
		if err := s.migrateLocked(&reg, data); err != nil {
			return nil, err
		}
	}

	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.cached = reg.Clone()
	return &reg, nil
}

// LoadOrInit hands out an empty document when the file does not exist yet.
// Nothing touches the disk until the first save.
func (s *RegistryStore) LoadOrInit() (*model.Registry, error) {
	reg, err := s.Load()
	if errors.Is(err, ErrNotInitialized) {
		return model.NewRegistry(), nil
	}
	return reg, err
}

// Save stamps lastUpdated, validates the document semantically and against
// the schema, then replaces the registry file via temp-write plus rename.
// The read cache is invalidated on success.
func (s *RegistryStore) Save(reg *model.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(reg)
}

func (s *RegistryStore) saveLocked(reg *model.Registry) error {
	reg.SchemaVersion = model.SchemaVersion
	reg.LastUpdated = time.Now().UTC()
	if reg.Sequence == nil {
		reg.Sequence = []int{}
	}
	if reg.Accounts == nil {
		reg.Accounts = map[string]model.AccountRecord{}
	}
	if reg.History == nil {
		reg.History = []model.SwitchEvent{}
	}

	if err := reg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := s.replaceFile(data); err != nil {
		return err
	}
	s.cached = nil
	return nil
}

// replaceFile writes the document to a temp file in the registry
// directory, re-reads and schema-checks it, and only then renames it over
// the live file. A document that fails the check is never installed.
func (s *RegistryStore) replaceFile(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".accounts-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	written, err := os.ReadFile(tmpName)
	if err != nil {
		return err
	}
	if err := validateRegistryBytes(written); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}
