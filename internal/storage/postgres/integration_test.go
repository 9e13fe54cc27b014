package postgres

import (
	"os"
	"testing"

	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/storage/storagetest"
)

// TestStore_Integration runs the provider suite against a real database.
// Set HABITSTREAK_TEST_POSTGRES to run it, e.g.
// "postgres://habitstreak@localhost:5432/habitstreak_test?sslmode=disable".
func TestStore_Integration(t *testing.T) {
	connStr := os.Getenv("HABITSTREAK_TEST_POSTGRES")
	if connStr == "" {
		t.Skip("HABITSTREAK_TEST_POSTGRES not set, skipping PostgreSQL integration test")
	}

	storagetest.Run(t, func(t *testing.T) storage.Provider {
		store := New(connStr)
		if err := store.Init(); err != nil {
			t.Fatalf("Failed to initialize store: %v", err)
		}
		for _, table := range []string{"fraud_flags", "audit_log", "streak_states", "completions", "habits"} {
			if _, err := store.GetDB().Exec("DELETE FROM " + table); err != nil {
				t.Fatalf("Failed to clean %s: %v", table, err)
			}
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}
