package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
)

const completionColumns = `id, habit_id, user_id, completed_at, timezone, difficulty, notes, active, synthetic, created_at, deactivated_at`

func scanCompletion(row scanner) (models.CompletionEvent, error) {
	var e models.CompletionEvent
	var completedAt, createdAt, difficulty string
	var deactivatedAt sql.NullString

	if err := row.Scan(&e.ID, &e.HabitID, &e.UserID, &completedAt, &e.Timezone, &difficulty,
		&e.Notes, &e.Active, &e.Synthetic, &createdAt, &deactivatedAt); err != nil {
		return models.CompletionEvent{}, err
	}
	e.Difficulty = models.Difficulty(difficulty)

	var err error
	if e.CompletedAt, err = parseTime(completedAt); err != nil {
		return models.CompletionEvent{}, fmt.Errorf("failed to parse completed_at for completion %s: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.CompletionEvent{}, fmt.Errorf("failed to parse created_at for completion %s: %w", e.ID, err)
	}
	if e.DeactivatedAt, err = parseNullTime(deactivatedAt); err != nil {
		return models.CompletionEvent{}, fmt.Errorf("failed to parse deactivated_at for completion %s: %w", e.ID, err)
	}
	return e, nil
}

func (q *queries) listCompletions(ctx context.Context, op, query string, args ...interface{}) ([]models.CompletionEvent, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, q.wrap(op, err)
	}
	defer rows.Close()

	var events []models.CompletionEvent
	for rows.Next() {
		e, err := scanCompletion(rows)
		if err != nil {
			return nil, q.wrap(op, err)
		}
		events = append(events, e)
	}
	return events, q.wrap(op, rows.Err())
}

func (q *queries) GetCompletions(ctx context.Context, key models.Key) ([]models.CompletionEvent, error) {
	return q.listCompletions(ctx, "storage.GetCompletions", `
		SELECT `+completionColumns+` FROM completions
		WHERE habit_id = ? AND user_id = ?
		ORDER BY completed_at, created_at`,
		key.HabitID, key.UserID)
}

func (q *queries) GetUserCompletionsSince(ctx context.Context, userID string, since time.Time) ([]models.CompletionEvent, error) {
	return q.listCompletions(ctx, "storage.GetUserCompletionsSince", `
		SELECT `+completionColumns+` FROM completions
		WHERE user_id = ? AND completed_at >= ?
		ORDER BY completed_at, created_at`,
		userID, formatTime(since))
}

func (q *queries) PutCompletion(ctx context.Context, e models.CompletionEvent, civilDate string) error {
	const op = "storage.PutCompletion"
	_, err := q.exec(ctx, `
		INSERT INTO completions (id, habit_id, user_id, completed_at, civil_date, timezone,
			difficulty, notes, active, synthetic, created_at, deactivated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.HabitID, e.UserID, formatTime(e.CompletedAt), civilDate, e.Timezone,
		string(e.Difficulty), e.Notes, e.Active, e.Synthetic, formatTime(e.CreatedAt), nullTime(e.DeactivatedAt))
	if err != nil {
		if q.d.IsUniqueViolation != nil && q.d.IsUniqueViolation(err) {
			return apperrors.New(apperrors.KindAlreadyExists, op, "an active completion already exists for %s", civilDate)
		}
		return q.wrap(op, err)
	}
	return nil
}

func (q *queries) SetCompletionActive(ctx context.Context, id string, active bool, at time.Time) error {
	const op = "storage.SetCompletionActive"
	var deactivatedAt sql.NullString
	if !active {
		deactivatedAt = nullTime(&at)
	}
	res, err := q.exec(ctx, `UPDATE completions SET active = ?, deactivated_at = ? WHERE id = ?`, active, deactivatedAt, id)
	if err != nil {
		if q.d.IsUniqueViolation != nil && q.d.IsUniqueViolation(err) {
			return apperrors.New(apperrors.KindAlreadyExists, op, "another completion is active on the same date as %s", id)
		}
		return q.wrap(op, err)
	}
	if rowsAffected(res) == 0 {
		return apperrors.New(apperrors.KindNotFound, op, "completion %q not found", id)
	}
	return nil
}
