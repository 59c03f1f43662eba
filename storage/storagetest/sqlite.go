// Package storagetest opens throwaway in-memory databases for tests.
package storagetest

import (
	"context"
	"testing"

	"game-battle-service/storage"

	"github.com/glebarez/sqlite"
)

// NewDB returns a migrated in-memory SQLite database closed at test cleanup.
// The pool is pinned to one connection so every query sees the same memory database.
func NewDB(t testing.TB) *storage.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), storage.PoolConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
