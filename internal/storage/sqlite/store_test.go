package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProviderSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Provider { return newTestStore(t) })
}

func TestLoadRequiresInit(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.db"))
	if err := store.Load(); err == nil {
		t.Fatal("Load() on a missing database should fail")
	}
}

func TestLoadAfterInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store := NewStore(path)
	if err := store.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	store.Close()

	reopened := NewStore(path)
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer reopened.Close()

	n, err := reopened.Migrate(nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Migrate() applied %d migrations on an up-to-date database", n)
	}
	if reopened.GetConfigPath() != path {
		t.Errorf("GetConfigPath() = %q, want %q", reopened.GetConfigPath(), path)
	}
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.RunTransaction(ctx, func(tx storage.Tx) error {
		return tx.AddHabit(ctx, storagetest.Habit("h1", "read"))
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	key := models.Key{HabitID: "h1", UserID: "u1"}
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.RunTransaction(ctx, func(tx storage.Tx) error {
				cur, err := tx.GetStreakState(ctx, key)
				if err != nil {
					return err
				}
				next := models.StreakState{HabitID: "h1", UserID: "u1"}
				if cur != nil {
					next = cur.Clone()
				}
				next.CurrentStreak++
				next.BestStreak = next.CurrentStreak
				_, err = tx.SaveStreakState(ctx, next)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}
	}

	state, err := store.GetStreakState(ctx, key)
	if err != nil || state == nil {
		t.Fatalf("GetStreakState() = %v, %v", state, err)
	}
	if state.CurrentStreak != writers || state.Version != writers {
		t.Errorf("got current=%d version=%d, want %d increments", state.CurrentStreak, state.Version, writers)
	}
}

func TestUniqueViolationMapsToAlreadyExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	add := func() error {
		return store.RunTransaction(ctx, func(tx storage.Tx) error {
			return tx.AddHabit(ctx, storagetest.Habit("h1", "read"))
		})
	}
	if err := add(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := add(); !errors.Is(err, apperrors.ErrAlreadyExists) {
		t.Errorf("second insert error = %v, want already_exists", err)
	}
}
