package models

import "time"

// FlagKind names an anti-fraud heuristic
type FlagKind string

const (
	FlagHourlyCeiling       FlagKind = "hourly_ceiling"
	FlagDailyCeiling        FlagKind = "daily_ceiling"
	FlagDuplicateInstant    FlagKind = "duplicate_instant"
	FlagImpossibleMilestone FlagKind = "impossible_milestone"
	FlagBackdated           FlagKind = "backdated_completion"
	FlagRepeatedRejections  FlagKind = "repeated_rejections"
)

// FraudFlag is an advisory marker for manual or automated review.
// Flags never change user data.
type FraudFlag struct {
	ID      string   `json:"id"`
	UserID  string   `json:"user_id"`
	HabitID string   `json:"habit_id,omitempty"`
	Kind    FlagKind `json:"kind"`
	Detail  string   `json:"detail"`
	// WindowKey deduplicates repeated detections of the same pattern.
	WindowKey  string    `json:"window_key"`
	DetectedAt time.Time `json:"detected_at"`
	Reviewed   bool      `json:"reviewed"`
}
