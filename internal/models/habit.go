package models

import "time"

// Habit represents a recurring practice tracked for one user
type Habit struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	// Timezone is the IANA zone "today" is resolved in for streak purposes.
	Timezone   string     `json:"timezone"`
	CreatedAt  time.Time  `json:"created_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Key identifies the (habit, user) aggregate the engine serializes on.
type Key struct {
	HabitID string `json:"habit_id"`
	UserID  string `json:"user_id"`
}

func (k Key) String() string {
	return k.HabitID + "/" + k.UserID
}

// Key returns the aggregate key for the habit's owner.
func (h Habit) Key() Key {
	return Key{HabitID: h.ID, UserID: h.UserID}
}
