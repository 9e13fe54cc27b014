package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
)

const habitColumns = `id, user_id, name, timezone, created_at, archived_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHabit(row scanner) (models.Habit, error) {
	var h models.Habit
	var createdAt string
	var archivedAt sql.NullString

	if err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Timezone, &createdAt, &archivedAt); err != nil {
		return models.Habit{}, err
	}

	var err error
	h.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return models.Habit{}, fmt.Errorf("failed to parse created_at for habit %s: %w", h.ID, err)
	}
	h.ArchivedAt, err = parseNullTime(archivedAt)
	if err != nil {
		return models.Habit{}, fmt.Errorf("failed to parse archived_at for habit %s: %w", h.ID, err)
	}
	return h, nil
}

func (q *queries) GetHabit(ctx context.Context, id string) (models.Habit, error) {
	const op = "storage.GetHabit"
	row := q.queryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Habit{}, apperrors.New(apperrors.KindNotFound, op, "habit %q not found", id)
	}
	if err != nil {
		return models.Habit{}, q.wrap(op, err)
	}
	return h, nil
}

// ListHabits lists one user's habits, or every user's when userID is empty.
func (q *queries) ListHabits(ctx context.Context, userID string, includeArchived bool) ([]models.Habit, error) {
	const op = "storage.ListHabits"

	query := `SELECT ` + habitColumns + ` FROM habits WHERE 1 = 1`
	var args []interface{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY user_id, name`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, q.wrap(op, err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, q.wrap(op, err)
		}
		habits = append(habits, h)
	}
	return habits, q.wrap(op, rows.Err())
}

func (q *queries) AddHabit(ctx context.Context, h models.Habit) error {
	const op = "storage.AddHabit"
	_, err := q.exec(ctx, `
		INSERT INTO habits (id, user_id, name, timezone, created_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.Name, h.Timezone, formatTime(h.CreatedAt), nullTime(h.ArchivedAt))
	if err != nil {
		if q.d.IsUniqueViolation != nil && q.d.IsUniqueViolation(err) {
			return apperrors.New(apperrors.KindAlreadyExists, op, "habit %q already exists for user %q", h.Name, h.UserID)
		}
		return q.wrap(op, err)
	}
	return nil
}

func (q *queries) SetHabitArchived(ctx context.Context, id string, archivedAt *time.Time) error {
	const op = "storage.SetHabitArchived"
	res, err := q.exec(ctx, `UPDATE habits SET archived_at = ? WHERE id = ?`, nullTime(archivedAt), id)
	if err != nil {
		return q.wrap(op, err)
	}
	if rowsAffected(res) == 0 {
		return apperrors.New(apperrors.KindNotFound, op, "habit %q not found", id)
	}
	return nil
}

func (q *queries) PurgeHabit(ctx context.Context, id string) error {
	const op = "storage.PurgeHabit"
	for _, stmt := range []string{
		`DELETE FROM completions WHERE habit_id = ?`,
		`DELETE FROM streak_states WHERE habit_id = ?`,
		`DELETE FROM fraud_flags WHERE habit_id = ?`,
	} {
		if _, err := q.exec(ctx, stmt, id); err != nil {
			return q.wrap(op, err)
		}
	}
	res, err := q.exec(ctx, `DELETE FROM habits WHERE id = ?`, id)
	if err != nil {
		return q.wrap(op, err)
	}
	if rowsAffected(res) == 0 {
		return apperrors.New(apperrors.KindNotFound, op, "habit %q not found", id)
	}
	return nil
}
