package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/ha-billing/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	StorePathKey = "store.path"

	storeFileMode   = 0o600
	storeDirMode    = 0o700
	storeConfigDir  = ".config/habill"
	storeConfigFile = "billing.toml"
	tempFilePattern = ".billing-*.toml.tmp"
	lockFileSuffix  = ".lock"
)

// Store keeps every engine key in one TOML document. Values are opaque bytes
// stored as strings under [entries].
type Store struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.KeyValueStore = (*Store)(nil)

func NewStore(cfg *viper.Viper) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetDefault(StorePathKey, filepath.Join(homeDir, storeConfigDir, storeConfigFile))

	path := cfg.GetString(StorePathKey)
	if path == "" {
		return nil, errors.New("store path is empty")
	}

	return NewStoreAt(path)
}

func NewStoreAt(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	return &Store{path: absPath, mu: lockForPath(absPath)}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if raw, ok := file.Entries[key]; ok {
			values[key] = []byte(raw)
		}
	}

	return values, nil
}

func (s *Store) Set(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.locked(func() error {
		file, err := s.readSchema()
		if err != nil {
			return err
		}

		for key, value := range entries {
			if value == nil {
				delete(file.Entries, key)
				continue
			}
			file.Entries[key] = string(value)
		}

		return s.writeSchema(file)
	})
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.locked(func() error {
		file, err := s.readSchema()
		if err != nil {
			return err
		}

		changed := false
		for _, key := range keys {
			if _, ok := file.Entries[key]; ok {
				delete(file.Entries, key)
				changed = true
			}
		}
		if !changed {
			return nil
		}

		return s.writeSchema(file)
	})
}

func (s *Store) Update(ctx context.Context, key string, fn ports.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.locked(func() error {
		file, err := s.readSchema()
		if err != nil {
			return err
		}

		var current []byte
		if raw, ok := file.Entries[key]; ok {
			current = []byte(raw)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if next == nil {
			if current == nil {
				return nil
			}
			delete(file.Entries, key)
		} else {
			file.Entries[key] = string(next)
		}

		return s.writeSchema(file)
	})
}

// locked runs a read-modify-write under the per-path mutex and the sibling
// lock file, so writers in other processes see each other's changes.
func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.path+lockFileSuffix, fn)
}

func (s *Store) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := fileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read billing file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode billing file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (s *Store) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(s.path), storeDirMode); err != nil {
		return fmt.Errorf("create billing directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode billing file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp billing file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp billing file: %w", err)
	}

	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp billing file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp billing file: %w", err)
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace billing file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(s.path, storeFileMode); err != nil {
		return fmt.Errorf("chmod billing file: %w", err)
	}

	return nil
}
