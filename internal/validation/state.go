package validation

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/utils"
)

// StateResult is the outcome of checking a state about to be committed.
type StateResult struct {
	State models.StreakState
	// Corrected is set when State carries the recomputed streak instead of
	// the proposed one.
	Corrected bool
	// Proposed and Recomputed are the current streaks that were compared.
	Proposed   int
	Recomputed int
	Detail     string
}

// ValidateState checks a merged StreakState before milestones are awarded
// and the state is committed.
//
// Structural faults (negative counters, duplicate or future milestones) are
// hard failures. The current streak is recomputed from events with an
// independent walk; a disagreement beyond the tolerance substitutes the
// recomputed run and the recomputed best, floored by the persisted best,
// instead of failing.
func (v *Validator) ValidateState(proposed models.StreakState, persisted *models.StreakState, events []models.CompletionEvent, today string, now time.Time) (StateResult, error) {
	const op = "validation.ValidateState"
	res := StateResult{State: proposed.Clone(), Proposed: proposed.CurrentStreak}

	if proposed.FreezesAvailable < 0 || proposed.FreezesUsed < 0 {
		return res, apperrors.New(apperrors.KindIntegrityViolation, op, "freeze counters went negative (available=%d used=%d)", proposed.FreezesAvailable, proposed.FreezesUsed)
	}
	if proposed.CurrentStreak < 0 || proposed.BestStreak < 0 {
		return res, apperrors.New(apperrors.KindIntegrityViolation, op, "negative streak (current=%d best=%d)", proposed.CurrentStreak, proposed.BestStreak)
	}
	seen := make(map[int]bool, len(proposed.Milestones))
	for _, m := range proposed.Milestones {
		if m.Days <= 0 {
			return res, apperrors.New(apperrors.KindIntegrityViolation, op, "milestone with non-positive days %d", m.Days)
		}
		if seen[m.Days] {
			return res, apperrors.New(apperrors.KindIntegrityViolation, op, "duplicate milestone for %d days", m.Days)
		}
		seen[m.Days] = true
		if m.AchievedAt.After(now) {
			return res, apperrors.New(apperrors.KindIntegrityViolation, op, "milestone %d achieved in the future (%s)", m.Days, m.AchievedAt.UTC().Format(time.RFC3339))
		}
	}

	current, best, start, last := recompute(events, today)
	res.Recomputed = current

	diff := proposed.CurrentStreak - current
	if diff < 0 {
		diff = -diff
	}
	if diff > v.limits.ToleranceDays {
		if persisted != nil && persisted.BestStreak > best {
			best = persisted.BestStreak
		}
		res.Corrected = true
		res.Detail = fmt.Sprintf("current streak %d replaced by recomputed %d, best %d by %d", proposed.CurrentStreak, current, proposed.BestStreak, best)
		res.State.CurrentStreak = current
		res.State.BestStreak = best
		res.State.StreakStartDate = start
		res.State.LastCompletionDate = last
	}

	if res.State.CurrentStreak > res.State.BestStreak {
		res.State.BestStreak = res.State.CurrentStreak
	}
	return res, nil
}

// recompute walks back day by day from today over a set of civil dates and
// measures the longest run among them. It must stay independent of package
// streak but apply the same today-or-yesterday rule.
func recompute(events []models.CompletionEvent, today string) (current, best int, start, last string) {
	days := make(map[string]bool, len(events))
	for _, e := range events {
		if !e.Active {
			continue
		}
		d, _ := utils.CivilDateOrUTC(e.CompletedAt, e.Timezone)
		if d > today {
			continue
		}
		days[d] = true
		if d > last {
			last = d
		}
	}
	best = longestRun(days)

	todayT, err := utils.ParseCivilDate(today)
	if err != nil {
		return 0, best, today, last
	}
	cursor := todayT
	if !days[cursor.Format(constants.DateFormat)] {
		cursor = cursor.AddDate(0, 0, -1)
		if !days[cursor.Format(constants.DateFormat)] {
			return 0, best, today, last
		}
	}
	for days[cursor.Format(constants.DateFormat)] {
		current++
		start = cursor.Format(constants.DateFormat)
		cursor = cursor.AddDate(0, 0, -1)
	}
	return current, best, start, last
}

// longestRun counts, for every date with no predecessor in the set, how far
// the run starting there extends.
func longestRun(days map[string]bool) int {
	best := 0
	for d := range days {
		t, err := utils.ParseCivilDate(d)
		if err != nil {
			continue
		}
		if days[t.AddDate(0, 0, -1).Format(constants.DateFormat)] {
			continue
		}
		run := 0
		for days[t.Format(constants.DateFormat)] {
			run++
			t = t.AddDate(0, 0, 1)
		}
		if run > best {
			best = run
		}
	}
	return best
}
