package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
)

func encodePayload(p *models.AuditPayload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func encodeStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func (q *queries) AppendAudit(ctx context.Context, entry models.AuditLogEntry) error {
	const op = "storage.AppendAudit"
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	oldData, err := encodePayload(entry.OldData)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, op, err)
	}
	newData, err := encodePayload(entry.NewData)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, op, err)
	}
	validationErrors, err := encodeStrings(entry.ValidationErrors)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, op, err)
	}
	suspiciousFlags, err := encodeStrings(entry.SuspiciousFlags)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, op, err)
	}

	_, err = q.exec(ctx, `
		INSERT INTO audit_log (id, occurred_at, user_id, action, entity_type, entity_id,
			old_data, new_data, validation_errors, suspicious_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, formatTime(entry.Timestamp), entry.UserID, string(entry.Action), string(entry.EntityType),
		entry.EntityID, oldData, newData, validationErrors, suspiciousFlags)
	return q.wrap(op, err)
}

func (q *queries) ListAudit(ctx context.Context, f models.AuditFilter) ([]models.AuditLogEntry, error) {
	const op = "storage.ListAudit"

	query := `SELECT id, occurred_at, user_id, action, entity_type, entity_id,
			old_data, new_data, validation_errors, suspicious_flags
		FROM audit_log WHERE 1 = 1`
	var args []interface{}
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}
	if len(f.Actions) > 0 {
		query += ` AND action IN (` + placeholders(len(f.Actions)) + `)`
		for _, a := range f.Actions {
			args = append(args, string(a))
		}
	}
	if !f.Since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, formatTime(f.Since))
	}
	query += ` ORDER BY occurred_at DESC, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, q.wrap(op, err)
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var occurredAt, action, entityType, validationErrors, suspiciousFlags string
		var oldData, newData sql.NullString
		if err := rows.Scan(&e.ID, &occurredAt, &e.UserID, &action, &entityType, &e.EntityID,
			&oldData, &newData, &validationErrors, &suspiciousFlags); err != nil {
			return nil, q.wrap(op, err)
		}
		e.Action = models.AuditAction(action)
		e.EntityType = models.EntityType(entityType)
		if e.Timestamp, err = parseTime(occurredAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("audit %s: %w", e.ID, err))
		}
		if oldData.Valid {
			e.OldData = &models.AuditPayload{}
			if err := json.Unmarshal([]byte(oldData.String), e.OldData); err != nil {
				return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("audit %s old_data: %w", e.ID, err))
			}
		}
		if newData.Valid {
			e.NewData = &models.AuditPayload{}
			if err := json.Unmarshal([]byte(newData.String), e.NewData); err != nil {
				return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("audit %s new_data: %w", e.ID, err))
			}
		}
		if err := json.Unmarshal([]byte(validationErrors), &e.ValidationErrors); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("audit %s validation_errors: %w", e.ID, err))
		}
		if err := json.Unmarshal([]byte(suspiciousFlags), &e.SuspiciousFlags); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("audit %s suspicious_flags: %w", e.ID, err))
		}
		if len(e.ValidationErrors) == 0 {
			e.ValidationErrors = nil
		}
		if len(e.SuspiciousFlags) == 0 {
			e.SuspiciousFlags = nil
		}
		entries = append(entries, e)
	}
	return entries, q.wrap(op, rows.Err())
}

func (q *queries) RecordFraudFlag(ctx context.Context, f models.FraudFlag) (bool, error) {
	const op = "storage.RecordFraudFlag"
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	res, err := q.exec(ctx, `
		INSERT INTO fraud_flags (id, user_id, habit_id, kind, detail, window_key, detected_at, reviewed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, habit_id, kind, window_key) DO NOTHING`,
		f.ID, f.UserID, f.HabitID, string(f.Kind), f.Detail, f.WindowKey, formatTime(f.DetectedAt), f.Reviewed)
	if err != nil {
		return false, q.wrap(op, err)
	}
	return rowsAffected(res) > 0, nil
}

// ListFlags lists one user's flags, or every user's when userID is empty.
func (q *queries) ListFlags(ctx context.Context, userID string) ([]models.FraudFlag, error) {
	const op = "storage.ListFlags"

	query := `SELECT id, user_id, habit_id, kind, detail, window_key, detected_at, reviewed FROM fraud_flags`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY detected_at DESC, id`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, q.wrap(op, err)
	}
	defer rows.Close()

	var flags []models.FraudFlag
	for rows.Next() {
		var f models.FraudFlag
		var kind, detectedAt string
		if err := rows.Scan(&f.ID, &f.UserID, &f.HabitID, &kind, &f.Detail, &f.WindowKey, &detectedAt, &f.Reviewed); err != nil {
			return nil, q.wrap(op, err)
		}
		f.Kind = models.FlagKind(kind)
		if f.DetectedAt, err = parseTime(detectedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("flag %s: %w", f.ID, err))
		}
		flags = append(flags, f)
	}
	return flags, q.wrap(op, rows.Err())
}
