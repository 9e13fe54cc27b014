package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/logger"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/utils"
)

// CompletionRequest is the input of RecordCompletion
type CompletionRequest struct {
	HabitID     string
	UserID      string
	CompletedAt time.Time
	Timezone    string
	Difficulty  models.Difficulty
	Notes       string
}

// RecordCompletion appends a completion and commits the recomputed streak
// with it.
func (e *Engine) RecordCompletion(ctx context.Context, req CompletionRequest) (models.CompletionEvent, models.Outcome, error) {
	const op = "engine.RecordCompletion"
	started := time.Now()
	key := models.Key{HabitID: req.HabitID, UserID: req.UserID}

	var event models.CompletionEvent
	var outcome models.Outcome
	err := e.recordCompletion(ctx, op, key, req, &event, &outcome)
	e.finish(ctx, op, started, req.UserID, models.EntityCompletion, req.HabitID, err)
	if err != nil {
		return models.CompletionEvent{}, models.Outcome{}, err
	}

	e.invalidate(ctx, key)
	e.publish(ctx, outcome)
	return event, outcome, nil
}

func (e *Engine) recordCompletion(ctx context.Context, op string, key models.Key, req CompletionRequest, event *models.CompletionEvent, outcome *models.Outcome) error {
	if req.HabitID == "" || req.UserID == "" {
		return apperrors.New(apperrors.KindInvalidArgument, op, "habit id and user id are required")
	}
	actor, err := requireActor(ctx, op, req.UserID)
	if err != nil {
		return err
	}

	return e.execute(ctx, op, key, func(ctx context.Context, tx storage.Tx, now time.Time) error {
		agg, err := e.read(ctx, tx, op, key)
		if err != nil {
			return err
		}
		if agg.habit.ArchivedAt != nil {
			return apperrors.New(apperrors.KindInvalidArgument, op, "habit %q is archived", agg.habit.Name)
		}

		candidate := models.CompletionEvent{
			ID:          e.newID(),
			HabitID:     key.HabitID,
			UserID:      key.UserID,
			CompletedAt: req.CompletedAt,
			Timezone:    req.Timezone,
			Difficulty:  req.Difficulty,
			Notes:       req.Notes,
			Active:      true,
			CreatedAt:   now,
		}
		res, err := e.validator.ValidateCompletion(candidate, actor, agg.events, now)
		if err != nil {
			return err
		}
		candidate.Timezone = res.Timezone
		if res.HasWarnings() {
			logger.Warn("Completion accepted with warnings", "key", key, "warnings", res.Messages())
		}

		events := make([]models.CompletionEvent, 0, len(agg.events)+1)
		events = append(events, agg.events...)
		events = append(events, candidate)

		d, err := e.derive(key, agg.loc, events, agg.persisted, now)
		if err != nil {
			return err
		}

		// commit phase
		if err := tx.PutCompletion(ctx, candidate, res.CivilDate); err != nil {
			return err
		}
		saved, err := tx.SaveStreakState(ctx, d.state)
		if err != nil {
			return err
		}

		entry := newEntry(now, key.UserID, models.AuditCompletionRecorded, models.EntityCompletion, candidate.ID)
		entry.NewData = &models.AuditPayload{Completion: &candidate, Streak: &saved}
		entry.ValidationErrors = res.Messages()
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		if err := auditCorrection(ctx, tx, key, d, saved, now); err != nil {
			return err
		}

		var flags []models.FraudFlag
		for _, kind := range res.Flags {
			flags = append(flags, models.FraudFlag{
				UserID:     key.UserID,
				HabitID:    key.HabitID,
				Kind:       kind,
				Detail:     fmt.Sprintf("completion for %s recorded %s later", res.CivilDate, now.Sub(candidate.CompletedAt).Truncate(time.Minute)),
				WindowKey:  candidate.ID,
				DetectedAt: now,
			})
		}
		recent, err := tx.GetUserCompletionsSince(ctx, key.UserID, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
		flags = append(flags, e.detector.ScanCompletions(key.UserID, recent, now)...)
		flags = append(flags, e.detector.CheckMilestoneHistory(saved, events, now)...)
		written, err := e.recordFlags(ctx, tx, flags, now)
		if err != nil {
			return err
		}

		*event = candidate
		*outcome = outcomeOf(key, agg.persisted, d, saved, written)
		return nil
	})
}

// UndoLastCompletion deactivates the active completion with the latest
// completedAt. The record is kept for the audit trail.
func (e *Engine) UndoLastCompletion(ctx context.Context, habitID, userID string) (models.Outcome, error) {
	const op = "engine.UndoLastCompletion"
	started := time.Now()
	key := models.Key{HabitID: habitID, UserID: userID}

	var outcome models.Outcome
	err := e.undo(ctx, op, key, &outcome)
	e.finish(ctx, op, started, userID, models.EntityCompletion, habitID, err)
	if err != nil {
		return models.Outcome{}, err
	}

	e.invalidate(ctx, key)
	e.publish(ctx, outcome)
	return outcome, nil
}

func (e *Engine) undo(ctx context.Context, op string, key models.Key, outcome *models.Outcome) error {
	if _, err := requireActor(ctx, op, key.UserID); err != nil {
		return err
	}

	return e.execute(ctx, op, key, func(ctx context.Context, tx storage.Tx, now time.Time) error {
		agg, err := e.read(ctx, tx, op, key)
		if err != nil {
			return err
		}

		idx := latestActive(agg.events)
		if idx < 0 {
			return apperrors.New(apperrors.KindNotFound, op, "no active completion to undo")
		}
		target := agg.events[idx]

		events := make([]models.CompletionEvent, len(agg.events))
		copy(events, agg.events)
		undone := target
		undone.Active = false
		undone.DeactivatedAt = &now
		events[idx] = undone

		d, err := e.derive(key, agg.loc, events, agg.persisted, now)
		if err != nil {
			return err
		}

		if err := tx.SetCompletionActive(ctx, target.ID, false, now); err != nil {
			return err
		}
		saved, err := tx.SaveStreakState(ctx, d.state)
		if err != nil {
			return err
		}

		entry := newEntry(now, key.UserID, models.AuditCompletionUndone, models.EntityCompletion, target.ID)
		entry.OldData = &models.AuditPayload{Completion: &target, Streak: agg.persisted}
		entry.NewData = &models.AuditPayload{Completion: &undone, Streak: &saved}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		if err := auditCorrection(ctx, tx, key, d, saved, now); err != nil {
			return err
		}

		*outcome = outcomeOf(key, agg.persisted, d, saved, nil)
		return nil
	})
}

// latestActive returns the index of the active event with the latest
// completedAt, ties broken by createdAt, or -1.
func latestActive(events []models.CompletionEvent) int {
	idx := -1
	for i, ev := range events {
		if !ev.Active {
			continue
		}
		if idx < 0 {
			idx = i
			continue
		}
		best := events[idx]
		if ev.CompletedAt.After(best.CompletedAt) ||
			(ev.CompletedAt.Equal(best.CompletedAt) && ev.CreatedAt.After(best.CreatedAt)) {
			idx = i
		}
	}
	return idx
}

// UseFreeze spends one freeze credit to fill missedDate with a synthetic
// completion. It returns false when no credit is available; the streak is
// left untouched and only the refused attempt is audited.
func (e *Engine) UseFreeze(ctx context.Context, habitID, userID, missedDate string) (bool, models.Outcome, error) {
	const op = "engine.UseFreeze"
	started := time.Now()
	key := models.Key{HabitID: habitID, UserID: userID}

	var used bool
	var outcome models.Outcome
	err := e.useFreeze(ctx, op, key, missedDate, &used, &outcome)
	e.finish(ctx, op, started, userID, models.EntityStreak, key.String(), err)
	if err != nil {
		return false, models.Outcome{}, err
	}
	if !used {
		return false, outcome, nil
	}

	e.invalidate(ctx, key)
	e.publish(ctx, outcome)
	return true, outcome, nil
}

func (e *Engine) useFreeze(ctx context.Context, op string, key models.Key, missedDate string, used *bool, outcome *models.Outcome) error {
	if _, err := requireActor(ctx, op, key.UserID); err != nil {
		return err
	}
	missed, err := utils.ParseCivilDate(missedDate)
	if err != nil {
		return err
	}

	return e.execute(ctx, op, key, func(ctx context.Context, tx storage.Tx, now time.Time) error {
		*used = false
		agg, err := e.read(ctx, tx, op, key)
		if err != nil {
			return err
		}
		if agg.habit.ArchivedAt != nil {
			return apperrors.New(apperrors.KindInvalidArgument, op, "habit %q is archived", agg.habit.Name)
		}

		today, _ := utils.TodayIn(now, agg.loc)
		if missedDate >= today {
			return apperrors.New(apperrors.KindInvalidArgument, op, "missed date %s must be before today (%s)", missedDate, today)
		}
		created := agg.habit.CreatedAt.In(agg.loc).Format(constants.DateFormat)
		if missedDate < created {
			return apperrors.New(apperrors.KindInvalidArgument, op, "missed date %s is before the habit was created (%s)", missedDate, created)
		}
		for _, ev := range agg.events {
			if !ev.Active {
				continue
			}
			if date, _ := utils.CivilDateOrUTC(ev.CompletedAt, ev.Timezone); date == missedDate {
				return apperrors.New(apperrors.KindAlreadyExists, op, "%s already has an active completion", missedDate)
			}
		}

		if agg.persisted == nil || agg.persisted.FreezesAvailable == 0 {
			state := models.StreakState{HabitID: key.HabitID, UserID: key.UserID}
			if agg.persisted != nil {
				state = agg.persisted.Clone()
			}
			entry := newEntry(now, key.UserID, models.AuditFreezeRefused, models.EntityStreak, key.String())
			entry.OldData = &models.AuditPayload{Streak: agg.persisted}
			entry.ValidationErrors = []string{fmt.Sprintf("no freeze available to cover %s", missedDate)}
			if err := tx.AppendAudit(ctx, entry); err != nil {
				return err
			}
			*outcome = models.Outcome{HabitID: key.HabitID, UserID: key.UserID, State: state, PreviousStreak: state.CurrentStreak}
			return nil
		}

		spent := agg.persisted.Clone()
		spent.FreezesAvailable--
		spent.FreezesUsed++

		synthetic := models.CompletionEvent{
			ID:          e.newID(),
			HabitID:     key.HabitID,
			UserID:      key.UserID,
			CompletedAt: time.Date(missed.Year(), missed.Month(), missed.Day(), constants.FreezeCompletionHour, 0, 0, 0, agg.loc),
			Timezone:    agg.loc.String(),
			Difficulty:  models.DifficultyEasy,
			Notes:       "streak freeze",
			Active:      true,
			Synthetic:   true,
			CreatedAt:   now,
		}
		events := make([]models.CompletionEvent, 0, len(agg.events)+1)
		events = append(events, agg.events...)
		events = append(events, synthetic)

		d, err := e.derive(key, agg.loc, events, &spent, now)
		if err != nil {
			return err
		}

		if err := tx.PutCompletion(ctx, synthetic, missedDate); err != nil {
			return err
		}
		saved, err := tx.SaveStreakState(ctx, d.state)
		if err != nil {
			return err
		}

		entry := newEntry(now, key.UserID, models.AuditFreezeUsed, models.EntityStreak, key.String())
		entry.OldData = &models.AuditPayload{Streak: agg.persisted}
		entry.NewData = &models.AuditPayload{Completion: &synthetic, Streak: &saved}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		if err := auditCorrection(ctx, tx, key, d, saved, now); err != nil {
			return err
		}

		*used = true
		*outcome = outcomeOf(key, agg.persisted, d, saved, nil)
		return nil
	})
}
