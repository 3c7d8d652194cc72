package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"klinefeed/internal/memorystore"
	"klinefeed/pkg/storage"
)

var validSymbol = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store writes one JSON snapshot file per symbol under dir.
type Store struct {
	dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(symbol string) (string, error) {
	if !validSymbol.MatchString(symbol) {
		return "", fmt.Errorf("invalid symbol %q", symbol)
	}
	return filepath.Join(s.dir, strings.ToUpper(symbol)+".json"), nil
}

// Save replaces the symbol's file. The new content is written to a temp file
// first and renamed over the old one.
func (s *Store) Save(ctx context.Context, symbol string, bars []memorystore.Bar) error {
	if err := ctx.Err(); err != nil {
		return storage.SaveError(symbol, err)
	}

	path, err := s.path(symbol)
	if err != nil {
		return storage.SaveError(symbol, err)
	}

	data, err := storage.EncodeSnapshot(bars)
	if err != nil {
		return storage.SaveError(symbol, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return storage.SaveError(symbol, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return storage.SaveError(symbol, err)
	}
	if err := tmp.Close(); err != nil {
		return storage.SaveError(symbol, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return storage.SaveError(symbol, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, symbol string) ([]memorystore.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.LoadError(symbol, err)
	}

	path, err := s.path(symbol)
	if err != nil {
		return nil, storage.LoadError(symbol, err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []memorystore.Bar{}, nil
	}
	if err != nil {
		return nil, storage.LoadError(symbol, err)
	}

	bars, err := storage.DecodeSnapshot(data)
	if err != nil {
		return nil, storage.LoadError(symbol, err)
	}
	return bars, nil
}
