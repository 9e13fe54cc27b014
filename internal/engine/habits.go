package engine

import (
	"context"
	"strings"
	"time"

	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/utils"
)

// AddHabit registers a habit and its initial streak state.
func (e *Engine) AddHabit(ctx context.Context, userID, name, timezone string) (models.Habit, error) {
	const op = "engine.AddHabit"
	started := time.Now()

	name = strings.TrimSpace(name)
	if timezone == "" {
		timezone = constants.DefaultTimezone
	}
	habit := models.Habit{ID: e.newID(), UserID: userID, Name: name, Timezone: timezone}

	err := e.addHabit(ctx, op, &habit)
	e.finish(ctx, op, started, userID, models.EntityHabit, habit.ID, err)
	if err != nil {
		return models.Habit{}, err
	}
	return habit, nil
}

func (e *Engine) addHabit(ctx context.Context, op string, habit *models.Habit) error {
	if _, err := requireActor(ctx, op, habit.UserID); err != nil {
		return err
	}
	if habit.Name == "" {
		return apperrors.New(apperrors.KindInvalidArgument, op, "habit name is required")
	}
	loc, err := utils.LoadLocation(habit.Timezone)
	if err != nil {
		return err
	}

	return e.execute(ctx, op, habit.Key(), func(ctx context.Context, tx storage.Tx, now time.Time) error {
		habit.CreatedAt = now
		if err := tx.AddHabit(ctx, *habit); err != nil {
			return err
		}

		today, _ := utils.TodayIn(now, loc)
		saved, err := tx.SaveStreakState(ctx, models.StreakState{
			HabitID:         habit.ID,
			UserID:          habit.UserID,
			StreakStartDate: today,
			UpdatedAt:       now,
		})
		if err != nil {
			return err
		}

		created := *habit
		entry := newEntry(now, habit.UserID, models.AuditHabitCreated, models.EntityHabit, habit.ID)
		entry.NewData = &models.AuditPayload{Habit: &created, Streak: &saved}
		return tx.AppendAudit(ctx, entry)
	})
}

// GetHabit returns one habit.
func (e *Engine) GetHabit(ctx context.Context, habitID string) (models.Habit, error) {
	const op = "engine.GetHabit"
	started := time.Now()

	var habit models.Habit
	err := e.view(ctx, func(ctx context.Context, r storage.Reader) error {
		var err error
		if habit, err = r.GetHabit(ctx, habitID); err != nil {
			return err
		}
		return checkActor(ctx, op, habit.UserID)
	})
	e.observe(op, started, err)
	if err != nil {
		return models.Habit{}, err
	}
	return habit, nil
}

// ListHabits lists a user's habits. An empty userID means the actor's, or
// every user's for an internal caller.
func (e *Engine) ListHabits(ctx context.Context, userID string, includeArchived bool) ([]models.Habit, error) {
	const op = "engine.ListHabits"
	started := time.Now()

	if userID == "" {
		userID, _ = ActorFrom(ctx)
	}
	var habits []models.Habit
	err := checkActor(ctx, op, userID)
	if err == nil {
		err = e.view(ctx, func(ctx context.Context, r storage.Reader) error {
			var err error
			habits, err = r.ListHabits(ctx, userID, includeArchived)
			return err
		})
	}
	e.observe(op, started, err)
	return habits, err
}

// ArchiveHabit hides a habit from listings and the sweep. Its history stays.
func (e *Engine) ArchiveHabit(ctx context.Context, habitID string) (models.Habit, error) {
	return e.setArchived(ctx, "engine.ArchiveHabit", habitID, true)
}

// UnarchiveHabit reverses ArchiveHabit.
func (e *Engine) UnarchiveHabit(ctx context.Context, habitID string) (models.Habit, error) {
	return e.setArchived(ctx, "engine.UnarchiveHabit", habitID, false)
}

func (e *Engine) setArchived(ctx context.Context, op, habitID string, archive bool) (models.Habit, error) {
	started := time.Now()

	var habit models.Habit
	err := e.execute(ctx, op, models.Key{HabitID: habitID}, func(ctx context.Context, tx storage.Tx, now time.Time) error {
		current, err := tx.GetHabit(ctx, habitID)
		if err != nil {
			return err
		}
		if _, err := requireActor(ctx, op, current.UserID); err != nil {
			return err
		}
		habit = current
		if (current.ArchivedAt != nil) == archive {
			return nil
		}

		action := models.AuditHabitUnarchived
		habit.ArchivedAt = nil
		if archive {
			action = models.AuditHabitArchived
			archivedAt := now
			habit.ArchivedAt = &archivedAt
		}
		if err := tx.SetHabitArchived(ctx, habitID, habit.ArchivedAt); err != nil {
			return err
		}

		updated := habit
		entry := newEntry(now, current.UserID, action, models.EntityHabit, habitID)
		entry.OldData = &models.AuditPayload{Habit: &current}
		entry.NewData = &models.AuditPayload{Habit: &updated}
		return tx.AppendAudit(ctx, entry)
	})
	e.finish(ctx, op, started, "", models.EntityHabit, habitID, err)
	if err != nil {
		return models.Habit{}, err
	}
	return habit, nil
}

// DeleteHabit purges a habit with its completions, streak state and flags.
// The audit log keeps the deletion and everything before it.
func (e *Engine) DeleteHabit(ctx context.Context, habitID string) error {
	const op = "engine.DeleteHabit"
	started := time.Now()

	var key models.Key
	err := e.execute(ctx, op, models.Key{HabitID: habitID}, func(ctx context.Context, tx storage.Tx, now time.Time) error {
		habit, err := tx.GetHabit(ctx, habitID)
		if err != nil {
			return err
		}
		if _, err := requireActor(ctx, op, habit.UserID); err != nil {
			return err
		}
		key = habit.Key()

		state, err := tx.GetStreakState(ctx, key)
		if err != nil {
			return err
		}
		if err := tx.PurgeHabit(ctx, habitID); err != nil {
			return err
		}

		entry := newEntry(now, habit.UserID, models.AuditHabitDeleted, models.EntityHabit, habitID)
		entry.OldData = &models.AuditPayload{Habit: &habit, Streak: state}
		return tx.AppendAudit(ctx, entry)
	})
	e.finish(ctx, op, started, "", models.EntityHabit, habitID, err)
	if err != nil {
		return err
	}
	e.invalidate(ctx, key)
	return nil
}

// ListAudit queries the audit log. An actor may only read their own entries.
func (e *Engine) ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	const op = "engine.ListAudit"
	started := time.Now()

	if filter.UserID == "" {
		filter.UserID, _ = ActorFrom(ctx)
	}
	var entries []models.AuditLogEntry
	err := checkActor(ctx, op, filter.UserID)
	if err == nil {
		err = e.view(ctx, func(ctx context.Context, r storage.Reader) error {
			var err error
			entries, err = r.ListAudit(ctx, filter)
			return err
		})
	}
	e.observe(op, started, err)
	return entries, err
}

// ListFlags returns stored anti-fraud flags for review.
func (e *Engine) ListFlags(ctx context.Context, userID string) ([]models.FraudFlag, error) {
	const op = "engine.ListFlags"
	started := time.Now()

	if userID == "" {
		userID, _ = ActorFrom(ctx)
	}
	var flags []models.FraudFlag
	err := checkActor(ctx, op, userID)
	if err == nil {
		err = e.view(ctx, func(ctx context.Context, r storage.Reader) error {
			var err error
			flags, err = r.ListFlags(ctx, userID)
			return err
		})
	}
	e.observe(op, started, err)
	return flags, err
}
