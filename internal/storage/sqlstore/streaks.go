package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
)

func (q *queries) GetStreakState(ctx context.Context, key models.Key) (*models.StreakState, error) {
	const op = "storage.GetStreakState"
	row := q.queryRow(ctx, `
		SELECT habit_id, user_id, current_streak, best_streak, last_completion_date, streak_start_date,
			freezes_available, freezes_used, milestones, version, updated_at
		FROM streak_states WHERE habit_id = ? AND user_id = ?`,
		key.HabitID, key.UserID)

	var s models.StreakState
	var milestones, updatedAt string
	err := row.Scan(&s.HabitID, &s.UserID, &s.CurrentStreak, &s.BestStreak, &s.LastCompletionDate,
		&s.StreakStartDate, &s.FreezesAvailable, &s.FreezesUsed, &milestones, &s.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, q.wrap(op, err)
	}

	if err := json.Unmarshal([]byte(milestones), &s.Milestones); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("failed to decode milestones for %s: %w", key, err))
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("failed to parse updated_at for %s: %w", key, err))
	}
	if len(s.Milestones) == 0 {
		s.Milestones = nil
	}
	return &s, nil
}

func (q *queries) SaveStreakState(ctx context.Context, s models.StreakState) (models.StreakState, error) {
	const op = "storage.SaveStreakState"

	milestones := s.Milestones
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	encoded, err := json.Marshal(milestones)
	if err != nil {
		return models.StreakState{}, apperrors.Wrap(apperrors.KindInternal, op, err)
	}

	if s.Version == 0 {
		_, err := q.exec(ctx, `
			INSERT INTO streak_states (habit_id, user_id, current_streak, best_streak, last_completion_date,
				streak_start_date, freezes_available, freezes_used, milestones, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			s.HabitID, s.UserID, s.CurrentStreak, s.BestStreak, s.LastCompletionDate,
			s.StreakStartDate, s.FreezesAvailable, s.FreezesUsed, string(encoded), formatTime(s.UpdatedAt))
		if err != nil {
			if q.d.IsUniqueViolation != nil && q.d.IsUniqueViolation(err) {
				return models.StreakState{}, apperrors.New(apperrors.KindConflict, op, "streak state for %s was created concurrently", s.Key())
			}
			return models.StreakState{}, q.wrap(op, err)
		}
		saved := s.Clone()
		saved.Version = 1
		return saved, nil
	}

	res, err := q.exec(ctx, `
		UPDATE streak_states SET current_streak = ?, best_streak = ?, last_completion_date = ?,
			streak_start_date = ?, freezes_available = ?, freezes_used = ?, milestones = ?,
			version = version + 1, updated_at = ?
		WHERE habit_id = ? AND user_id = ? AND version = ?`,
		s.CurrentStreak, s.BestStreak, s.LastCompletionDate, s.StreakStartDate,
		s.FreezesAvailable, s.FreezesUsed, string(encoded), formatTime(s.UpdatedAt),
		s.HabitID, s.UserID, s.Version)
	if err != nil {
		return models.StreakState{}, q.wrap(op, err)
	}
	if rowsAffected(res) == 0 {
		return models.StreakState{}, apperrors.New(apperrors.KindConflict, op, "streak state for %s changed since version %d", s.Key(), s.Version)
	}

	saved := s.Clone()
	saved.Version = s.Version + 1
	return saved, nil
}
