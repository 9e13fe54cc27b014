package validation

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/utils"
)

// Detector runs the advisory anti-fraud heuristics. It never blocks or
// reverts anything; callers persist the flags it returns.
type Detector struct {
	limits Limits
}

// NewDetector creates a Detector with the given thresholds
func NewDetector(limits Limits) *Detector {
	return &Detector{limits: limits}
}

func newFlag(userID, habitID string, kind models.FlagKind, window, detail string, now time.Time) models.FraudFlag {
	return models.FraudFlag{
		ID:         uuid.NewString(),
		UserID:     userID,
		HabitID:    habitID,
		Kind:       kind,
		Detail:     detail,
		WindowKey:  window,
		DetectedAt: now,
	}
}

// ScanCompletions looks at one user's recent completions across all habits
// for frequency ceilings and shared instants. Inactive events count too: an
// undo does not hide the attempt.
func (d *Detector) ScanCompletions(userID string, events []models.CompletionEvent, now time.Time) []models.FraudFlag {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]models.CompletionEvent, 0, len(events))
	for _, e := range events {
		if e.UserID == userID && !e.Synthetic {
			sorted = append(sorted, e)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CompletedAt.Before(sorted[j].CompletedAt)
	})

	var flags []models.FraudFlag
	if f, ok := d.ceiling(userID, sorted, time.Hour, d.limits.HourlyCeiling, models.FlagHourlyCeiling, "2006-01-02T15", now); ok {
		flags = append(flags, f)
	}
	if f, ok := d.ceiling(userID, sorted, 24*time.Hour, d.limits.DailyCeiling, models.FlagDailyCeiling, "2006-01-02", now); ok {
		flags = append(flags, f)
	}

	byInstant := make(map[int64][]models.CompletionEvent)
	for _, e := range sorted {
		k := e.CompletedAt.UnixNano()
		byInstant[k] = append(byInstant[k], e)
	}
	instants := make([]int64, 0, len(byInstant))
	for k, group := range byInstant {
		if len(group) > 1 {
			instants = append(instants, k)
		}
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i] < instants[j] })
	for _, k := range instants {
		group := byInstant[k]
		at := group[0].CompletedAt.UTC()
		flags = append(flags, newFlag(userID, "", models.FlagDuplicateInstant,
			at.Format(time.RFC3339Nano),
			fmt.Sprintf("%d completions share the instant %s", len(group), at.Format(time.RFC3339Nano)),
			now))
	}
	return flags
}

// ceiling slides a window over sorted events and reports the first window
// holding more than limit completions.
func (d *Detector) ceiling(userID string, sorted []models.CompletionEvent, window time.Duration, limit int, kind models.FlagKind, keyLayout string, now time.Time) (models.FraudFlag, bool) {
	if limit <= 0 {
		return models.FraudFlag{}, false
	}
	lo := 0
	for hi := range sorted {
		for sorted[hi].CompletedAt.Sub(sorted[lo].CompletedAt) >= window {
			lo++
		}
		if count := hi - lo + 1; count > limit {
			start := sorted[lo].CompletedAt.UTC()
			return newFlag(userID, "", kind, start.Format(keyLayout),
				fmt.Sprintf("%d completions within %s starting %s (limit %d)", count, window, start.Format(time.RFC3339), limit),
				now), true
		}
	}
	return models.FraudFlag{}, false
}

// CheckMilestoneHistory flags milestones whose achievedAt predates having
// enough distinct completion days to reach that streak. Completions are
// counted as they stood at achievedAt, so a later undo does not count
// against a milestone that was earned.
func (d *Detector) CheckMilestoneHistory(state models.StreakState, events []models.CompletionEvent, now time.Time) []models.FraudFlag {
	var flags []models.FraudFlag
	for _, m := range state.Milestones {
		days := make(map[string]struct{})
		for _, e := range events {
			if !activeAt(e, m.AchievedAt) || e.CompletedAt.After(m.AchievedAt) {
				continue
			}
			date, _ := utils.CivilDateOrUTC(e.CompletedAt, e.Timezone)
			days[date] = struct{}{}
		}
		if len(days) < m.Days {
			flags = append(flags, newFlag(state.UserID, state.HabitID, models.FlagImpossibleMilestone,
				fmt.Sprintf("%d", m.Days),
				fmt.Sprintf("%d-day milestone achieved %s with only %d completion days before it", m.Days, m.AchievedAt.UTC().Format(time.RFC3339), len(days)),
				now))
		}
	}
	return flags
}

// activeAt reports whether e had been written and not yet undone at t.
func activeAt(e models.CompletionEvent, t time.Time) bool {
	if e.CreatedAt.After(t) {
		return false
	}
	if e.Active {
		return true
	}
	return e.DeactivatedAt != nil && !e.DeactivatedAt.Before(t)
}

// ScanRejections flags a user whose rejected mutations within the lookback
// exceed the rejection ceiling.
func (d *Detector) ScanRejections(userID string, entries []models.AuditLogEntry, now time.Time) []models.FraudFlag {
	if d.limits.RejectionCeiling <= 0 {
		return nil
	}
	since := now.Add(-d.limits.RejectionLookback)
	count := 0
	for _, e := range entries {
		if e.UserID == userID && e.Action == models.AuditRejected && !e.Timestamp.Before(since) {
			count++
		}
	}
	if count <= d.limits.RejectionCeiling {
		return nil
	}
	return []models.FraudFlag{newFlag(userID, "", models.FlagRepeatedRejections,
		now.UTC().Format("2006-01-02"),
		fmt.Sprintf("%d rejected mutations since %s (limit %d)", count, since.UTC().Format(time.RFC3339), d.limits.RejectionCeiling),
		now)}
}

// Kinds extracts flag kinds for an Outcome.
func Kinds(flags []models.FraudFlag) []models.FlagKind {
	if len(flags) == 0 {
		return nil
	}
	out := make([]models.FlagKind, 0, len(flags))
	for _, f := range flags {
		out = append(out, f.Kind)
	}
	return out
}
