package engine

import (
	"context"
	"time"

	"github.com/julianstephens/habitstreak/internal/analytics"
	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/logger"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/streak"
	"github.com/julianstephens/habitstreak/internal/utils"
	"github.com/julianstephens/habitstreak/internal/validation"
)

// CalculateStreak returns the streak as of now without writing anything.
// Results are served from the cache until the next commit for the key.
func (e *Engine) CalculateStreak(ctx context.Context, habitID, userID string) (models.StreakState, error) {
	const op = "engine.CalculateStreak"
	started := time.Now()
	key := models.Key{HabitID: habitID, UserID: userID}

	if err := checkActor(ctx, op, userID); err != nil {
		e.observe(op, started, err)
		return models.StreakState{}, err
	}

	cached, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache read failed", "key", key, "error", err)
	}
	e.metrics.CacheLookup(ok)
	if ok {
		e.observe(op, started, nil)
		return cached, nil
	}

	var state models.StreakState
	err = e.view(ctx, func(ctx context.Context, r storage.Reader) error {
		agg, err := e.read(ctx, r, op, key)
		if err != nil {
			return err
		}
		today, _ := utils.TodayIn(e.now(), agg.loc)
		calc, _ := e.calculate(key, agg.events, today)
		state = streak.Merge(calc, agg.persisted)
		return nil
	})
	e.observe(op, started, err)
	if err != nil {
		return models.StreakState{}, err
	}

	if err := e.cache.Set(ctx, key, state); err != nil {
		logger.Warn("Cache write failed", "key", key, "error", err)
	}
	return state, nil
}

// Reconcile recomputes the stored streak for now. It writes only when the
// derived state or milestones changed.
func (e *Engine) Reconcile(ctx context.Context, habitID, userID string) (models.Outcome, error) {
	const op = "engine.Reconcile"
	started := time.Now()
	key := models.Key{HabitID: habitID, UserID: userID}

	var outcome models.Outcome
	err := checkActor(ctx, op, userID)
	if err == nil {
		err = e.execute(ctx, op, key, func(ctx context.Context, tx storage.Tx, now time.Time) error {
			agg, err := e.read(ctx, tx, op, key)
			if err != nil {
				return err
			}
			d, err := e.derive(key, agg.loc, agg.events, agg.persisted, now)
			if err != nil {
				return err
			}

			if agg.persisted != nil && !d.check.Corrected && !streak.Changed(d.state, *agg.persisted) {
				outcome = models.Outcome{
					HabitID:        habitID,
					UserID:         userID,
					State:          agg.persisted.Clone(),
					PreviousStreak: agg.persisted.CurrentStreak,
				}
				return nil
			}

			saved, err := tx.SaveStreakState(ctx, d.state)
			if err != nil {
				return err
			}
			entry := newEntry(now, userID, models.AuditReconciled, models.EntityStreak, key.String())
			entry.OldData = &models.AuditPayload{Streak: agg.persisted}
			entry.NewData = &models.AuditPayload{Streak: &saved}
			if err := tx.AppendAudit(ctx, entry); err != nil {
				return err
			}
			if err := auditCorrection(ctx, tx, key, d, saved, now); err != nil {
				return err
			}
			outcome = outcomeOf(key, agg.persisted, d, saved, nil)
			return nil
		})
	}
	if apperrors.KindOf(err) == apperrors.KindIntegrityViolation {
		e.finish(ctx, op, started, userID, models.EntityStreak, key.String(), err)
	} else {
		e.observe(op, started, err)
	}
	if err != nil {
		return models.Outcome{}, err
	}

	if outcome.Changed {
		e.invalidate(ctx, key)
		e.publish(ctx, outcome)
	}
	return outcome, nil
}

// MarkCelebrated flips a milestone's celebrated flag. It reports false when
// the milestone was already celebrated.
func (e *Engine) MarkCelebrated(ctx context.Context, habitID, userID string, days int) (bool, error) {
	const op = "engine.MarkCelebrated"
	started := time.Now()
	key := models.Key{HabitID: habitID, UserID: userID}

	var marked bool
	_, err := requireActor(ctx, op, userID)
	if err == nil {
		err = e.execute(ctx, op, key, func(ctx context.Context, tx storage.Tx, now time.Time) error {
			marked = false
			persisted, err := tx.GetStreakState(ctx, key)
			if err != nil {
				return err
			}
			if persisted == nil {
				return apperrors.New(apperrors.KindNotFound, op, "no streak state for %s", key)
			}
			idx := -1
			for i, m := range persisted.Milestones {
				if m.Days == days {
					idx = i
					break
				}
			}
			if idx < 0 {
				return apperrors.New(apperrors.KindNotFound, op, "no %d-day milestone for %s", days, key)
			}
			if persisted.Milestones[idx].Celebrated {
				return nil
			}

			updated := persisted.Clone()
			updated.Milestones[idx].Celebrated = true
			updated.UpdatedAt = now
			saved, err := tx.SaveStreakState(ctx, updated)
			if err != nil {
				return err
			}
			entry := newEntry(now, userID, models.AuditMilestoneCelebrated, models.EntityStreak, key.String())
			entry.OldData = &models.AuditPayload{Streak: persisted}
			entry.NewData = &models.AuditPayload{Streak: &saved}
			if err := tx.AppendAudit(ctx, entry); err != nil {
				return err
			}
			marked = true
			return nil
		})
	}
	e.finish(ctx, op, started, userID, models.EntityStreak, key.String(), err)
	if err != nil {
		return false, err
	}
	if marked {
		e.invalidate(ctx, key)
	}
	return marked, nil
}

// displayLocation resolves an explicit display timezone, falling back to
// the habit's.
func displayLocation(timezone string, habitLoc *time.Location) *time.Location {
	if timezone == "" {
		return habitLoc
	}
	loc, err := utils.ResolveLocation(timezone)
	if err != nil {
		logger.Warn("Display timezone unusable, using UTC", "timezone", timezone)
	}
	return loc
}

var difficultyRank = map[models.Difficulty]int{
	models.DifficultyEasy:   1,
	models.DifficultyMedium: 2,
	models.DifficultyHard:   3,
}

// GetCalendar returns the last days civil dates ending today in timezone,
// oldest first. Each completion sits on its own civil date.
func (e *Engine) GetCalendar(ctx context.Context, habitID, userID string, days int, timezone string) ([]models.CalendarDay, error) {
	const op = "engine.GetCalendar"
	started := time.Now()
	key := models.Key{HabitID: habitID, UserID: userID}

	var out []models.CalendarDay
	err := checkActor(ctx, op, userID)
	if err == nil && (days <= 0 || days > constants.MaxCalendarDays) {
		err = apperrors.New(apperrors.KindInvalidArgument, op, "days must be between 1 and %d", constants.MaxCalendarDays)
	}
	if err == nil {
		err = e.view(ctx, func(ctx context.Context, r storage.Reader) error {
			agg, err := e.read(ctx, r, op, key)
			if err != nil {
				return err
			}
			today, _ := utils.TodayIn(e.now(), displayLocation(timezone, agg.loc))
			end, err := utils.ParseCivilDate(today)
			if err != nil {
				return err
			}

			byDate := make(map[string]*models.CalendarDay)
			for _, ev := range agg.events {
				if !ev.Active {
					continue
				}
				date, _ := utils.CivilDateOrUTC(ev.CompletedAt, ev.Timezone)
				day, ok := byDate[date]
				if !ok {
					day = &models.CalendarDay{Date: date}
					byDate[date] = day
				}
				day.Count++
				if ev.Synthetic {
					day.Frozen = true
					continue
				}
				day.Completed = true
				if difficultyRank[ev.Difficulty] > difficultyRank[day.Difficulty] {
					day.Difficulty = ev.Difficulty
				}
			}

			out = make([]models.CalendarDay, 0, days)
			for t := end.AddDate(0, 0, -(days - 1)); !t.After(end); t = t.AddDate(0, 0, 1) {
				date := t.Format(constants.DateFormat)
				if day, ok := byDate[date]; ok {
					out = append(out, *day)
				} else {
					out = append(out, models.CalendarDay{Date: date})
				}
			}
			return nil
		})
	}
	e.observe(op, started, err)
	return out, err
}

// GetConsistency builds the analytics report over the last windowDays.
func (e *Engine) GetConsistency(ctx context.Context, habitID, userID string, windowDays int, timezone string) (analytics.Report, error) {
	const op = "engine.GetConsistency"
	started := time.Now()
	key := models.Key{HabitID: habitID, UserID: userID}

	var report analytics.Report
	err := checkActor(ctx, op, userID)
	if err == nil {
		err = e.view(ctx, func(ctx context.Context, r storage.Reader) error {
			agg, err := e.read(ctx, r, op, key)
			if err != nil {
				return err
			}
			today, _ := utils.TodayIn(e.now(), displayLocation(timezone, agg.loc))
			report, err = analytics.Compute(agg.events, windowDays, today)
			return err
		})
	}
	e.observe(op, started, err)
	return report, err
}

// ScanUser runs the anti-fraud heuristics over one user's recent activity
// and stores any new flags. Flags never change user data.
func (e *Engine) ScanUser(ctx context.Context, userID string) ([]models.FraudFlag, error) {
	const op = "engine.ScanUser"
	started := time.Now()

	var written []models.FraudFlag
	err := checkActor(ctx, op, userID)
	if err == nil {
		err = e.execute(ctx, op, models.Key{UserID: userID}, func(ctx context.Context, tx storage.Tx, now time.Time) error {
			written = nil
			limits := e.validator.Limits()

			recent, err := tx.GetUserCompletionsSince(ctx, userID, now.Add(-e.policy.Sweep.Lookback))
			if err != nil {
				return err
			}
			flags := e.detector.ScanCompletions(userID, recent, now)

			rejections, err := tx.ListAudit(ctx, models.AuditFilter{
				UserID:  userID,
				Actions: []models.AuditAction{models.AuditRejected},
				Since:   now.Add(-limits.RejectionLookback),
			})
			if err != nil {
				return err
			}
			flags = append(flags, e.detector.ScanRejections(userID, rejections, now)...)

			habits, err := tx.ListHabits(ctx, userID, false)
			if err != nil {
				return err
			}
			for _, h := range habits {
				state, err := tx.GetStreakState(ctx, h.Key())
				if err != nil {
					return err
				}
				if state == nil || len(state.Milestones) == 0 {
					continue
				}
				raw, err := tx.GetCompletions(ctx, h.Key())
				if err != nil {
					return err
				}
				events, _ := validation.Quarantine(raw)
				flags = append(flags, e.detector.CheckMilestoneHistory(*state, events, now)...)
			}

			written, err = e.recordFlags(ctx, tx, flags, now)
			return err
		})
	}
	e.observe(op, started, err)
	return written, err
}
