package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/logger"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/streak"
	"github.com/julianstephens/habitstreak/internal/utils"
	"github.com/julianstephens/habitstreak/internal/validation"
)

// txFunc is one attempt of the protocol. It is re-run from the read phase
// after a conflict, so it must not leak state between attempts.
type txFunc func(ctx context.Context, tx storage.Tx, now time.Time) error

// execute runs fn in a transaction bounded by the operation timeout,
// retrying with exponential backoff while the store reports conflicts.
func (e *Engine) execute(ctx context.Context, op string, key models.Key, fn txFunc) error {
	ctx, cancel := context.WithTimeout(ctx, e.policy.Protocol.OperationTimeout)
	defer cancel()

	attempts := e.policy.Protocol.MaxAttempts
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		now := e.now()
		err = e.store.RunTransaction(ctx, func(tx storage.Tx) error {
			return fn(ctx, tx, now)
		})
		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		e.metrics.Retry(op)
		delay := e.backoff(attempt)
		logger.Debug("Write conflict, retrying", "op", op, "key", key, "attempt", attempt, "delay", delay)
		if serr := sleep(ctx, delay); serr != nil {
			return apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("timed out while retrying: %w", serr))
		}
	}

	logger.Warn("Write conflicts exhausted retries", "op", op, "key", key, "attempts", attempts)
	return apperrors.Wrap(apperrors.KindConflict, op, fmt.Errorf("gave up after %d attempts: %w", attempts, err))
}

// view runs a read-only snapshot.
func (e *Engine) view(ctx context.Context, fn func(ctx context.Context, r storage.Reader) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.policy.Protocol.OperationTimeout)
	defer cancel()
	return e.store.RunTransaction(ctx, func(tx storage.Tx) error {
		return fn(ctx, tx)
	})
}

func (e *Engine) backoff(attempt int) time.Duration {
	base, ceiling := e.policy.Protocol.BaseBackoff, e.policy.Protocol.MaxBackoff
	d := base << (attempt - 1)
	if d <= 0 || d > ceiling {
		d = ceiling
	}
	// full jitter over the upper half
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// aggregate is what the read phase loads for one key.
type aggregate struct {
	habit     models.Habit
	loc       *time.Location
	events    []models.CompletionEvent
	persisted *models.StreakState
}

func (e *Engine) read(ctx context.Context, r storage.Reader, op string, key models.Key) (aggregate, error) {
	habit, err := r.GetHabit(ctx, key.HabitID)
	if err != nil {
		return aggregate{}, err
	}
	if habit.UserID != key.UserID {
		return aggregate{}, apperrors.New(apperrors.KindNotFound, op, "habit %q not found for user %q", key.HabitID, key.UserID)
	}

	loc, err := utils.ResolveLocation(habit.Timezone)
	if err != nil {
		logger.Warn("Habit timezone unusable, using UTC", "habit", habit.ID, "timezone", habit.Timezone)
	}

	raw, err := r.GetCompletions(ctx, key)
	if err != nil {
		return aggregate{}, err
	}
	events, quarantined := validation.Quarantine(raw)
	for _, w := range quarantined {
		logger.Warn("Quarantined completion", "key", key, "reason", w.Description)
	}

	persisted, err := r.GetStreakState(ctx, key)
	if err != nil {
		return aggregate{}, err
	}
	if persisted != nil {
		if err := persisted.Validate(); err != nil {
			return aggregate{}, apperrors.Wrap(apperrors.KindIntegrityViolation, op, err)
		}
	}
	return aggregate{habit: habit, loc: loc, events: events, persisted: persisted}, nil
}

// derived is the compute phase result.
type derived struct {
	state models.StreakState
	fresh []models.Milestone
	check validation.StateResult
	today string
}

// derive runs calculate, merge, the state check and milestones. It is pure
// apart from logging.
func (e *Engine) derive(key models.Key, loc *time.Location, events []models.CompletionEvent, persisted *models.StreakState, now time.Time) (derived, error) {
	today, _ := utils.TodayIn(now, loc)

	calc, warnings := e.calculate(key, events, today)
	for _, w := range warnings {
		logger.Warn("Completion timezone unusable, using UTC", "key", key, "error", w)
	}

	merged := streak.Merge(calc, persisted)

	// Milestones are awarded from the checked state only.
	check, err := e.validator.ValidateState(merged, persisted, events, today, now)
	if err != nil {
		return derived{}, err
	}
	if check.Corrected {
		logger.Warn("Streak replaced by recomputation", "key", key, "detail", check.Detail)
		e.metrics.Correction()
	}
	state, fresh := e.ladder.Apply(check.State, now)
	state.UpdatedAt = now
	return derived{state: state, fresh: fresh, check: check, today: today}, nil
}

func newEntry(now time.Time, userID string, action models.AuditAction, entity models.EntityType, entityID string) models.AuditLogEntry {
	return models.AuditLogEntry{
		Timestamp:  now,
		UserID:     userID,
		Action:     action,
		EntityType: entity,
		EntityID:   entityID,
	}
}

// auditCorrection records an integrity correction next to the mutation it
// happened in.
func auditCorrection(ctx context.Context, tx storage.Tx, key models.Key, d derived, saved models.StreakState, now time.Time) error {
	if !d.check.Corrected {
		return nil
	}
	entry := newEntry(now, key.UserID, models.AuditIntegrityCorrected, models.EntityStreak, key.String())
	entry.NewData = &models.AuditPayload{Streak: &saved}
	entry.ValidationErrors = []string{d.check.Detail}
	return tx.AppendAudit(ctx, entry)
}

// recordFlags persists flags and returns those that were new.
func (e *Engine) recordFlags(ctx context.Context, tx storage.Tx, flags []models.FraudFlag, now time.Time) ([]models.FraudFlag, error) {
	var written []models.FraudFlag
	for _, f := range flags {
		ok, err := tx.RecordFraudFlag(ctx, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		logger.Info("Suspicious activity flagged", "user", f.UserID, "habit", f.HabitID, "kind", f.Kind, "detail", f.Detail)
		e.metrics.FraudFlag(string(f.Kind))

		entityType, entityID := models.EntityStreak, f.UserID
		if f.HabitID != "" {
			entityID = models.Key{HabitID: f.HabitID, UserID: f.UserID}.String()
		}
		entry := newEntry(now, f.UserID, models.AuditSuspicious, entityType, entityID)
		entry.SuspiciousFlags = []string{fmt.Sprintf("%s: %s", f.Kind, f.Detail)}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return nil, err
		}
		written = append(written, f)
	}
	return written, nil
}

func outcomeOf(key models.Key, persisted *models.StreakState, d derived, saved models.StreakState, flags []models.FraudFlag) models.Outcome {
	previous := 0
	if persisted != nil {
		previous = persisted.CurrentStreak
	}
	return models.Outcome{
		HabitID:        key.HabitID,
		UserID:         key.UserID,
		State:          saved,
		NewMilestones:  d.fresh,
		StreakBroken:   previous > 0 && saved.CurrentStreak == 0,
		PreviousStreak: previous,
		Corrected:      d.check.Corrected,
		Flags:          validation.Kinds(flags),
		Changed:        true,
	}
}

// isRejection reports whether err is a terminal validation failure that
// belongs in the audit log.
func isRejection(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidArgument, apperrors.KindInvalidTimezone, apperrors.KindUnauthorized,
		apperrors.KindAlreadyExists, apperrors.KindNotFound, apperrors.KindIntegrityViolation:
		return true
	}
	return false
}

// finish records metrics for a mutation and audits a rejection in its own
// transaction, since the mutation's own transaction was rolled back.
func (e *Engine) finish(ctx context.Context, op string, started time.Time, userID string, entity models.EntityType, entityID string, err error) {
	e.metrics.ObserveOperation(op, string(apperrors.KindOf(err)), time.Since(started))
	if err == nil || !isRejection(err) {
		if err != nil {
			logger.Error("Operation failed", "op", op, "user", userID, "entity", entityID, "error", err)
		}
		return
	}
	if userID == "" {
		userID, _ = ActorFrom(ctx)
	}
	if apperrors.KindOf(err) == apperrors.KindIntegrityViolation {
		logger.Error("Streak state failed integrity check", "op", op, "user", userID, "entity", entityID, "error", err)
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.policy.Protocol.OperationTimeout)
	defer cancel()

	entry := newEntry(e.now(), userID, models.AuditRejected, entity, entityID)
	entry.ValidationErrors = []string{err.Error()}
	if aerr := e.store.RunTransaction(actx, func(tx storage.Tx) error {
		return tx.AppendAudit(actx, entry)
	}); aerr != nil {
		logger.Error("Failed to audit rejected mutation", "op", op, "error", aerr)
	}
}

func (e *Engine) observe(op string, started time.Time, err error) {
	e.metrics.ObserveOperation(op, string(apperrors.KindOf(err)), time.Since(started))
}

func (e *Engine) invalidate(ctx context.Context, key models.Key) {
	if err := e.cache.Invalidate(ctx, key); err != nil {
		logger.Warn("Cache invalidation failed", "key", key, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, outcome models.Outcome) {
	if e.sink != nil {
		e.sink.Publish(ctx, outcome)
	}
}
