package models

import "time"

// AuditAction names what an audit entry records
type AuditAction string

const (
	AuditCompletionRecorded  AuditAction = "completion_recorded"
	AuditCompletionUndone    AuditAction = "completion_undone"
	AuditFreezeUsed          AuditAction = "freeze_used"
	AuditFreezeRefused       AuditAction = "freeze_refused"
	AuditMilestoneCelebrated AuditAction = "milestone_celebrated"
	AuditReconciled          AuditAction = "streak_reconciled"
	AuditIntegrityCorrected  AuditAction = "integrity_corrected"
	AuditRejected            AuditAction = "mutation_rejected"
	AuditSuspicious          AuditAction = "suspicious_activity"
	AuditHabitCreated        AuditAction = "habit_created"
	AuditHabitArchived       AuditAction = "habit_archived"
	AuditHabitUnarchived     AuditAction = "habit_unarchived"
	AuditHabitDeleted        AuditAction = "habit_deleted"
)

// EntityType names the kind of entity an audit entry is about
type EntityType string

const (
	EntityCompletion EntityType = "completion"
	EntityStreak     EntityType = "streak_state"
	EntityHabit      EntityType = "habit"
)

// AuditPayload is the typed snapshot stored as old/new data.
type AuditPayload struct {
	Completion *CompletionEvent `json:"completion,omitempty"`
	Streak     *StreakState     `json:"streak,omitempty"`
	Habit      *Habit           `json:"habit,omitempty"`
}

// AuditLogEntry is an immutable record of a mutation attempt.
type AuditLogEntry struct {
	ID               string        `json:"id"`
	Timestamp        time.Time     `json:"timestamp"`
	UserID           string        `json:"user_id"`
	Action           AuditAction   `json:"action"`
	EntityType       EntityType    `json:"entity_type"`
	EntityID         string        `json:"entity_id"`
	OldData          *AuditPayload `json:"old_data,omitempty"`
	NewData          *AuditPayload `json:"new_data,omitempty"`
	ValidationErrors []string      `json:"validation_errors,omitempty"`
	SuspiciousFlags  []string      `json:"suspicious_flags,omitempty"`
}

// AuditFilter narrows audit queries. Zero fields do not filter.
type AuditFilter struct {
	UserID   string
	EntityID string
	Actions  []AuditAction
	Since    time.Time
	Limit    int
}
