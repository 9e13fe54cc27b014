// Package storagetest is a conformance suite every storage.Provider must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/storage"
)

// Factory returns an initialized, empty provider.
type Factory func(t *testing.T) storage.Provider

var base = time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)

// Run executes the suite; each subtest gets a fresh provider.
func Run(t *testing.T, newProvider Factory) {
	t.Run("Habits", func(t *testing.T) { testHabits(t, newProvider(t)) })
	t.Run("Completions", func(t *testing.T) { testCompletions(t, newProvider(t)) })
	t.Run("StreakStateVersioning", func(t *testing.T) { testStreakState(t, newProvider(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newProvider(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newProvider(t)) })
	t.Run("FraudFlags", func(t *testing.T) { testFlags(t, newProvider(t)) })
	t.Run("PurgeHabit", func(t *testing.T) { testPurge(t, newProvider(t)) })
}

func write(t *testing.T, p storage.Provider, fn func(tx storage.Tx) error) error {
	t.Helper()
	return p.RunTransaction(context.Background(), fn)
}

// Habit returns a habit fixture for user u1.
func Habit(id, name string) models.Habit {
	return models.Habit{ID: id, UserID: "u1", Name: name, Timezone: "UTC", CreatedAt: base.AddDate(0, -1, 0)}
}

// Completion returns an active completion fixture for h1/u1.
func Completion(id string, at time.Time) models.CompletionEvent {
	return models.CompletionEvent{
		ID: id, HabitID: "h1", UserID: "u1",
		CompletedAt: at, Timezone: "UTC", Difficulty: models.DifficultyEasy,
		Active: true, CreatedAt: at,
	}
}

func seedHabit(t *testing.T, p storage.Provider) {
	t.Helper()
	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		return tx.AddHabit(context.Background(), Habit("h1", "read"))
	}))
}

func testHabits(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	seedHabit(t, p)
	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		return tx.AddHabit(ctx, Habit("h2", "walk"))
	}))

	got, err := p.GetHabit(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "read", got.Name)
	assert.True(t, got.CreatedAt.Equal(base.AddDate(0, -1, 0)))
	assert.Nil(t, got.ArchivedAt)

	err = write(t, p, func(tx storage.Tx) error { return tx.AddHabit(ctx, Habit("h3", "read")) })
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "duplicate name: %v", err)

	_, err = p.GetHabit(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	archivedAt := base
	require.NoError(t, write(t, p, func(tx storage.Tx) error { return tx.SetHabitArchived(ctx, "h2", &archivedAt) }))

	active, err := p.ListHabits(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "h1", active[0].ID)

	all, err := p.ListHabits(ctx, "", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, write(t, p, func(tx storage.Tx) error { return tx.SetHabitArchived(ctx, "h2", nil) }))
	active, err = p.ListHabits(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	err = write(t, p, func(tx storage.Tx) error { return tx.SetHabitArchived(ctx, "missing", nil) })
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func testCompletions(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	key := models.Key{HabitID: "h1", UserID: "u1"}
	seedHabit(t, p)

	later := Completion("c2", base)
	earlier := Completion("c1", base.AddDate(0, 0, -1))
	earlier.Notes = "first"
	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		if err := tx.PutCompletion(ctx, later, "2024-01-03"); err != nil {
			return err
		}
		return tx.PutCompletion(ctx, earlier, "2024-01-02")
	}))

	events, err := p.GetCompletions(ctx, key)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c1", events[0].ID)
	assert.Equal(t, "first", events[0].Notes)
	assert.True(t, events[0].CompletedAt.Equal(earlier.CompletedAt))
	assert.True(t, events[1].Active)

	dup := Completion("c3", base.Add(time.Hour))
	err = write(t, p, func(tx storage.Tx) error { return tx.PutCompletion(ctx, dup, "2024-01-03") })
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "duplicate date: %v", err)

	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		if err := tx.SetCompletionActive(ctx, "c2", false, base.Add(2*time.Hour)); err != nil {
			return err
		}
		return tx.PutCompletion(ctx, dup, "2024-01-03")
	}))

	events, err = p.GetCompletions(ctx, key)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, e := range events {
		if e.ID == "c2" {
			assert.False(t, e.Active)
			require.NotNil(t, e.DeactivatedAt)
		}
	}

	err = write(t, p, func(tx storage.Tx) error { return tx.SetCompletionActive(ctx, "c2", true, base) })
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "reactivating onto a taken date: %v", err)

	err = write(t, p, func(tx storage.Tx) error { return tx.SetCompletionActive(ctx, "nope", false, base) })
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	recent, err := p.GetUserCompletionsSince(ctx, "u1", base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func testStreakState(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	key := models.Key{HabitID: "h1", UserID: "u1"}
	seedHabit(t, p)

	got, err := p.GetStreakState(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	state := models.StreakState{
		HabitID: "h1", UserID: "u1",
		CurrentStreak: 7, BestStreak: 7,
		LastCompletionDate: "2024-01-03", StreakStartDate: "2023-12-28",
		Milestones: []models.Milestone{{Days: 7, AchievedAt: base}},
		UpdatedAt:  base,
	}

	var saved models.StreakState
	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		var err error
		saved, err = tx.SaveStreakState(ctx, state)
		return err
	}))
	assert.Equal(t, int64(1), saved.Version)

	got, err = p.GetStreakState(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)
	require.Len(t, got.Milestones, 1)
	assert.Equal(t, 7, got.Milestones[0].Days)
	assert.True(t, got.Milestones[0].AchievedAt.Equal(base))

	// a second insert of version 0 loses the race
	err = write(t, p, func(tx storage.Tx) error {
		_, err := tx.SaveStreakState(ctx, state)
		return err
	})
	assert.True(t, errors.Is(err, apperrors.ErrConflict), "concurrent create: %v", err)

	next := saved.Clone()
	next.CurrentStreak, next.BestStreak = 8, 8
	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		var err error
		saved, err = tx.SaveStreakState(ctx, next)
		return err
	}))
	assert.Equal(t, int64(2), saved.Version)

	// next still carries version 1
	err = write(t, p, func(tx storage.Tx) error {
		_, err := tx.SaveStreakState(ctx, next)
		return err
	})
	assert.True(t, errors.Is(err, apperrors.ErrConflict), "stale version: %v", err)

	got, err = p.GetStreakState(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 8, got.CurrentStreak)
	assert.Equal(t, int64(2), got.Version)
}

func testRollback(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	seedHabit(t, p)
	boom := errors.New("boom")

	err := write(t, p, func(tx storage.Tx) error {
		if err := tx.PutCompletion(ctx, Completion("c1", base), "2024-01-03"); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	events, err := p.GetCompletions(ctx, models.Key{HabitID: "h1", UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testAudit(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	c := Completion("c1", base)
	entries := []models.AuditLogEntry{
		{Timestamp: base, UserID: "u1", Action: models.AuditCompletionRecorded, EntityType: models.EntityCompletion,
			EntityID: "c1", NewData: &models.AuditPayload{Completion: &c}},
		{Timestamp: base.Add(time.Minute), UserID: "u1", Action: models.AuditRejected, EntityType: models.EntityCompletion,
			EntityID: "h1", ValidationErrors: []string{"completedAt is in the future"}},
		{Timestamp: base.Add(2 * time.Minute), UserID: "u2", Action: models.AuditRejected, EntityType: models.EntityCompletion,
			EntityID: "h9", SuspiciousFlags: []string{"hourly_ceiling"}},
	}
	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		for _, e := range entries {
			if err := tx.AppendAudit(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := p.ListAudit(ctx, models.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "u2", all[0].UserID, "newest first")
	assert.NotEmpty(t, all[0].ID)

	rejected, err := p.ListAudit(ctx, models.AuditFilter{UserID: "u1", Actions: []models.AuditAction{models.AuditRejected}})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, []string{"completedAt is in the future"}, rejected[0].ValidationErrors)
	assert.Nil(t, rejected[0].NewData)

	byEntity, err := p.ListAudit(ctx, models.AuditFilter{EntityID: "c1"})
	require.NoError(t, err)
	require.Len(t, byEntity, 1)
	require.NotNil(t, byEntity[0].NewData)
	require.NotNil(t, byEntity[0].NewData.Completion)
	assert.Equal(t, "c1", byEntity[0].NewData.Completion.ID)

	since, err := p.ListAudit(ctx, models.AuditFilter{Since: base.Add(30 * time.Second), Limit: 1})
	require.NoError(t, err)
	assert.Len(t, since, 1)
}

func testFlags(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	flag := models.FraudFlag{UserID: "u1", Kind: models.FlagHourlyCeiling, Detail: "11 in 1h", WindowKey: "2024-01-03T09", DetectedAt: base}

	var first, second bool
	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		var err error
		if first, err = tx.RecordFraudFlag(ctx, flag); err != nil {
			return err
		}
		second, err = tx.RecordFraudFlag(ctx, flag)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second, "same window must be deduplicated")

	flags, err := p.ListFlags(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, models.FlagHourlyCeiling, flags[0].Kind)
	assert.False(t, flags[0].Reviewed)

	none, err := p.ListFlags(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testPurge(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	key := models.Key{HabitID: "h1", UserID: "u1"}
	seedHabit(t, p)
	require.NoError(t, write(t, p, func(tx storage.Tx) error {
		if err := tx.PutCompletion(ctx, Completion("c1", base), "2024-01-03"); err != nil {
			return err
		}
		if _, err := tx.SaveStreakState(ctx, models.StreakState{HabitID: "h1", UserID: "u1", CurrentStreak: 1, BestStreak: 1, UpdatedAt: base}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, models.AuditLogEntry{Timestamp: base, UserID: "u1", Action: models.AuditCompletionRecorded, EntityType: models.EntityCompletion, EntityID: "c1"})
	}))

	require.NoError(t, write(t, p, func(tx storage.Tx) error { return tx.PurgeHabit(ctx, "h1") }))

	_, err := p.GetHabit(ctx, "h1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	events, err := p.GetCompletions(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, events)
	state, err := p.GetStreakState(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, state)

	audit, err := p.ListAudit(ctx, models.AuditFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, audit, 1, "audit history survives a purge")

	err = write(t, p, func(tx storage.Tx) error { return tx.PurgeHabit(ctx, "h1") })
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
