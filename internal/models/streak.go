package models

import (
	"fmt"
	"sort"
	"time"
)

// Milestone is a one-time badge for reaching a streak threshold
type Milestone struct {
	Days       int       `json:"days"`
	AchievedAt time.Time `json:"achieved_at"`
	Celebrated bool      `json:"celebrated"`
}

// StreakState is the derived aggregate for one (habit, user).
type StreakState struct {
	HabitID            string      `json:"habit_id"`
	UserID             string      `json:"user_id"`
	CurrentStreak      int         `json:"current_streak"`
	BestStreak         int         `json:"best_streak"`
	LastCompletionDate string      `json:"last_completion_date"` // YYYY-MM-DD or empty
	StreakStartDate    string      `json:"streak_start_date"`    // YYYY-MM-DD
	FreezesAvailable   int         `json:"freezes_available"`
	FreezesUsed        int         `json:"freezes_used"`
	Milestones         []Milestone `json:"milestones"`
	// Version is the optimistic concurrency token; 0 means never persisted.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the aggregate key.
func (s StreakState) Key() Key {
	return Key{HabitID: s.HabitID, UserID: s.UserID}
}

// Clone returns a deep copy so milestone slices are never shared.
func (s StreakState) Clone() StreakState {
	c := s
	if s.Milestones != nil {
		c.Milestones = make([]Milestone, len(s.Milestones))
		copy(c.Milestones, s.Milestones)
	}
	return c
}

// HasMilestone reports whether a milestone for days already exists.
func (s StreakState) HasMilestone(days int) bool {
	for _, m := range s.Milestones {
		if m.Days == days {
			return true
		}
	}
	return false
}

// SortMilestones orders milestones by ascending days.
func (s *StreakState) SortMilestones() {
	sort.SliceStable(s.Milestones, func(i, j int) bool {
		return s.Milestones[i].Days < s.Milestones[j].Days
	})
}

// Validate checks the document shape at the store boundary. It does not
// check time-dependent invariants; those belong to the validation layer.
func (s StreakState) Validate() error {
	switch {
	case s.HabitID == "" || s.UserID == "":
		return fmt.Errorf("streak state: missing key")
	case s.CurrentStreak < 0 || s.BestStreak < 0:
		return fmt.Errorf("streak state %s: negative streak", s.Key())
	case s.CurrentStreak > s.BestStreak:
		return fmt.Errorf("streak state %s: current %d exceeds best %d", s.Key(), s.CurrentStreak, s.BestStreak)
	case s.FreezesAvailable < 0 || s.FreezesUsed < 0:
		return fmt.Errorf("streak state %s: negative freeze counter", s.Key())
	}
	seen := make(map[int]bool, len(s.Milestones))
	for _, m := range s.Milestones {
		if m.Days <= 0 {
			return fmt.Errorf("streak state %s: milestone with non-positive days", s.Key())
		}
		if seen[m.Days] {
			return fmt.Errorf("streak state %s: duplicate milestone %d", s.Key(), m.Days)
		}
		seen[m.Days] = true
	}
	return nil
}
