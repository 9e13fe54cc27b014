package models

import (
	"fmt"
	"time"
)

// Difficulty is the self-reported effort of a completion
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the three allowed values.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// CompletionEvent is one append-only completion record.
// Only Active (and DeactivatedAt) ever change after the first write.
type CompletionEvent struct {
	ID          string     `json:"id"`
	HabitID     string     `json:"habit_id"`
	UserID      string     `json:"user_id"`
	CompletedAt time.Time  `json:"completed_at"`
	Timezone    string     `json:"timezone"`
	Difficulty  Difficulty `json:"difficulty"`
	Notes       string     `json:"notes,omitempty"`
	Active      bool       `json:"active"`
	// Synthetic marks completions inserted by a streak freeze.
	Synthetic     bool       `json:"synthetic,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// Key returns the aggregate key the event belongs to.
func (e CompletionEvent) Key() Key {
	return Key{HabitID: e.HabitID, UserID: e.UserID}
}

// Validate checks the document shape at the store boundary.
func (e CompletionEvent) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("completion: missing id")
	case e.HabitID == "":
		return fmt.Errorf("completion %s: missing habit_id", e.ID)
	case e.UserID == "":
		return fmt.Errorf("completion %s: missing user_id", e.ID)
	case e.CompletedAt.IsZero():
		return fmt.Errorf("completion %s: missing completed_at", e.ID)
	case e.CreatedAt.IsZero():
		return fmt.Errorf("completion %s: missing created_at", e.ID)
	case !e.Difficulty.Valid():
		return fmt.Errorf("completion %s: invalid difficulty %q", e.ID, e.Difficulty)
	}
	return nil
}

// ActiveOnly filters out undone completions.
func ActiveOnly(events []CompletionEvent) []CompletionEvent {
	active := make([]CompletionEvent, 0, len(events))
	for _, e := range events {
		if e.Active {
			active = append(active, e)
		}
	}
	return active
}
