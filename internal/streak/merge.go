package streak

import "github.com/julianstephens/habitstreak/internal/models"

// Merge combines a freshly calculated state with the persisted one.
//
// Freeze counters and milestones come from persisted because the event log
// cannot reproduce them. BestStreak never regresses, even when an undo
// removed the completions that earned it.
func Merge(calculated models.StreakState, persisted *models.StreakState) models.StreakState {
	if persisted == nil {
		return calculated.Clone()
	}

	merged := calculated.Clone()
	p := persisted.Clone()

	merged.FreezesAvailable = p.FreezesAvailable
	merged.FreezesUsed = p.FreezesUsed
	merged.Milestones = p.Milestones
	merged.Version = p.Version
	merged.UpdatedAt = p.UpdatedAt

	if p.BestStreak > merged.BestStreak {
		merged.BestStreak = p.BestStreak
	}
	if merged.CurrentStreak > merged.BestStreak {
		merged.BestStreak = merged.CurrentStreak
	}
	return merged
}

// Changed reports whether two states differ in any field the engine writes.
func Changed(a, b models.StreakState) bool {
	if a.CurrentStreak != b.CurrentStreak ||
		a.BestStreak != b.BestStreak ||
		a.LastCompletionDate != b.LastCompletionDate ||
		a.StreakStartDate != b.StreakStartDate ||
		a.FreezesAvailable != b.FreezesAvailable ||
		a.FreezesUsed != b.FreezesUsed ||
		len(a.Milestones) != len(b.Milestones) {
		return true
	}
	for i := range a.Milestones {
		if a.Milestones[i].Days != b.Milestones[i].Days ||
			a.Milestones[i].Celebrated != b.Milestones[i].Celebrated ||
			!a.Milestones[i].AchievedAt.Equal(b.Milestones[i].AchievedAt) {
			return true
		}
	}
	return false
}
