package streak

import (
	"sort"

	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/utils"
)

// Result is the part of a StreakState derivable from completion dates alone.
type Result struct {
	Current            int
	Best               int
	LastCompletionDate string
	StreakStartDate    string
}

// Calculate derives the streak from civil dates relative to today.
// dates need not be sorted or unique.
func Calculate(dates []string, today string) Result {
	d := normalize(dates)
	if len(d) == 0 {
		return Result{StreakStartDate: today}
	}

	yesterday, _ := utils.AddDays(today, -1)
	last := d[len(d)-1]

	res := Result{LastCompletionDate: last, StreakStartDate: today}
	if last == today || last == yesterday {
		res.Current = 1
		res.StreakStartDate = last
		for i := len(d) - 1; i > 0; i-- {
			if !utils.IsConsecutive(d[i-1], d[i]) {
				break
			}
			res.Current++
			res.StreakStartDate = d[i-1]
		}
	}

	res.Best = longestRun(d)
	if res.Current > res.Best {
		res.Best = res.Current
	}
	return res
}

// longestRun is a single forward run-length scan over sorted unique dates.
func longestRun(d []string) int {
	best, run := 0, 0
	for i := range d {
		if i > 0 && utils.IsConsecutive(d[i-1], d[i]) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

func normalize(dates []string) []string {
	if len(dates) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	// YYYY-MM-DD sorts lexically in date order.
	sort.Strings(out)
	return out
}

// CompletionDates reduces active events to sorted unique civil dates, each in
// the event's own timezone. Dates after today are dropped: a completion made
// in a zone ahead of the reference zone counts once the reference zone
// reaches that date. Events with an unusable timezone fall back to UTC and
// are reported in warnings.
func CompletionDates(events []models.CompletionEvent, today string) (dates []string, warnings []error) {
	raw := make([]string, 0, len(events))
	for _, e := range events {
		if !e.Active {
			continue
		}
		date, err := utils.CivilDateOrUTC(e.CompletedAt, e.Timezone)
		if err != nil {
			warnings = append(warnings, err)
		}
		if today != "" && date > today {
			continue
		}
		raw = append(raw, date)
	}
	return normalize(raw), warnings
}

// CalculateState builds a fresh StreakState for key from its event log.
// Freeze counters and milestones are zero; Merge fills them in.
func CalculateState(key models.Key, events []models.CompletionEvent, today string) (models.StreakState, []error) {
	dates, warnings := CompletionDates(events, today)
	res := Calculate(dates, today)
	return models.StreakState{
		HabitID:            key.HabitID,
		UserID:             key.UserID,
		CurrentStreak:      res.Current,
		BestStreak:         res.Best,
		LastCompletionDate: res.LastCompletionDate,
		StreakStartDate:    res.StreakStartDate,
	}, warnings
}
