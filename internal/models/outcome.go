package models

// Outcome is what each mutating operation hands to the notification
// collaborator. The engine never decides what to tell the user.
type Outcome struct {
	HabitID       string      `json:"habit_id"`
	UserID        string      `json:"user_id"`
	State         StreakState `json:"state"`
	NewMilestones []Milestone `json:"new_milestones,omitempty"`
	StreakBroken  bool        `json:"streak_broken"`
	// PreviousStreak is the current streak before the operation.
	PreviousStreak int `json:"previous_streak"`
	// Corrected is set when the integrity check substituted a recomputed streak.
	Corrected bool       `json:"corrected"`
	Flags     []FlagKind `json:"flags,omitempty"`
	// Changed is false when a reconcile found nothing to write.
	Changed bool `json:"changed"`
}

// CalendarDay is one civil date in a calendar view
type CalendarDay struct {
	Date       string     `json:"date"`
	Completed  bool       `json:"completed"`
	Frozen     bool       `json:"frozen"`
	Count      int        `json:"count"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}
