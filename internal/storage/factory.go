// Package storage persists replay runs and their per-step reward records.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var ErrUnsupportedBackend = errors.New("unsupported store backend")

// Kinds lists the backend names NewStore accepts.
func Kinds() []string {
	return []string{KindMemory, KindSQLite}
}

// NewStore returns an uninitialized store; callers run Init before use.
// An empty kind selects the memory backend.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w %q (want %s)", ErrUnsupportedBackend, kind, strings.Join(Kinds(), "|"))
	}
}

// CloseIfSupported releases backends that hold resources. The memory store has nothing to close.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
