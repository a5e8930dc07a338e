package testsupport

import (
	"path/filepath"
	"testing"

	"murmur/internal/config"
	"murmur/internal/queue"
)

// MustOpenStore opens the SQLite queue store under the config's log dir and
// registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.SQLiteStore {
	t.Helper()

	store, err := queue.OpenSQLite(filepath.Join(cfg.Paths.LogDir, queue.DatabaseFileName))
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close queue store: %v", err)
		}
	})
	return store
}
