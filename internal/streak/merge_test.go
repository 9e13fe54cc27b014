package streak

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitstreak/internal/models"
)

func TestMergeWithoutPersistedReturnsCalculated(t *testing.T) {
	calc := models.StreakState{HabitID: "h", UserID: "u", CurrentStreak: 2, BestStreak: 5, StreakStartDate: "2024-01-02"}
	assert.Equal(t, calc, Merge(calc, nil))
}

func TestMergeCopiesNonDerivableFields(t *testing.T) {
	achieved := time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)
	persisted := &models.StreakState{
		HabitID: "h", UserID: "u",
		CurrentStreak: 7, BestStreak: 7,
		FreezesAvailable: 1, FreezesUsed: 2,
		Milestones: []models.Milestone{{Days: 7, AchievedAt: achieved}},
		Version:    4,
	}
	calc := models.StreakState{
		HabitID: "h", UserID: "u",
		CurrentStreak: 8, BestStreak: 8,
		LastCompletionDate: "2024-01-08", StreakStartDate: "2024-01-01",
	}

	merged := Merge(calc, persisted)
	assert.Equal(t, 8, merged.CurrentStreak)
	assert.Equal(t, 8, merged.BestStreak)
	assert.Equal(t, 1, merged.FreezesAvailable)
	assert.Equal(t, 2, merged.FreezesUsed)
	assert.Equal(t, persisted.Milestones, merged.Milestones)
	assert.Equal(t, int64(4), merged.Version)
	assert.Equal(t, "2024-01-08", merged.LastCompletionDate)

	// no aliasing between merged and persisted
	merged.Milestones[0].Celebrated = true
	assert.False(t, persisted.Milestones[0].Celebrated)
}

func TestMergeBestNeverRegresses(t *testing.T) {
	// an undo dropped the run that earned best=10
	persisted := &models.StreakState{HabitID: "h", UserID: "u", CurrentStreak: 10, BestStreak: 10}
	calc := models.StreakState{HabitID: "h", UserID: "u", CurrentStreak: 3, BestStreak: 3}

	merged := Merge(calc, persisted)
	assert.Equal(t, 10, merged.BestStreak)
	assert.Equal(t, 3, merged.CurrentStreak)
}

func TestMergeMonotonicProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		pb := rng.Intn(400)
		persisted := &models.StreakState{BestStreak: pb, CurrentStreak: rng.Intn(pb + 1)}
		cb := rng.Intn(400)
		calc := models.StreakState{BestStreak: cb, CurrentStreak: rng.Intn(cb + 1)}

		merged := Merge(calc, persisted)
		require.GreaterOrEqual(t, merged.BestStreak, persisted.BestStreak)
		require.LessOrEqual(t, merged.CurrentStreak, merged.BestStreak)
	}
}

func TestChanged(t *testing.T) {
	a := models.StreakState{CurrentStreak: 1, BestStreak: 1, Milestones: []models.Milestone{{Days: 7}}}
	b := a.Clone()
	assert.False(t, Changed(a, b))

	b.Milestones[0].Celebrated = true
	assert.True(t, Changed(a, b))

	c := a.Clone()
	c.Version = 9
	assert.False(t, Changed(a, c), "version is bookkeeping, not derived state")
}
