package streak

import (
	"time"

	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/models"
)

// Ladder is the fixed set of milestone thresholds and the one that pays a freeze.
type Ladder struct {
	Thresholds []int
	// FreezeReward is the threshold that awards one freeze; 0 disables rewards.
	FreezeReward int
}

// DefaultLadder returns the 7/30/60/100/365 ladder with the 30-day freeze reward.
func DefaultLadder() Ladder {
	t := make([]int, len(constants.MilestoneThresholds))
	copy(t, constants.MilestoneThresholds)
	return Ladder{Thresholds: t, FreezeReward: constants.FreezeRewardThreshold}
}

// CheckMilestones returns the milestones state has newly crossed and the
// resulting freezesAvailable. Thresholds are walked in ascending order so a
// jump past several thresholds awards each one. Calling it again on the
// updated state yields nothing.
func (l Ladder) CheckMilestones(state models.StreakState, now time.Time) ([]models.Milestone, int) {
	freezes := state.FreezesAvailable
	var fresh []models.Milestone
	for _, threshold := range l.Thresholds {
		if state.CurrentStreak < threshold || state.HasMilestone(threshold) {
			continue
		}
		fresh = append(fresh, models.Milestone{
			Days:       threshold,
			AchievedAt: now,
			Celebrated: false,
		})
		if threshold == l.FreezeReward {
			freezes++
		}
	}
	return fresh, freezes
}

// Apply runs CheckMilestones and folds the result into a copy of state.
func (l Ladder) Apply(state models.StreakState, now time.Time) (models.StreakState, []models.Milestone) {
	fresh, freezes := l.CheckMilestones(state, now)
	updated := state.Clone()
	if len(fresh) == 0 {
		return updated, nil
	}
	updated.Milestones = append(updated.Milestones, fresh...)
	updated.FreezesAvailable = freezes
	updated.SortMilestones()
	return updated, fresh
}
