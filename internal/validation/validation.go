package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/utils"
)

// WarningType represents a non-fatal validation finding
type WarningType string

const (
	WarningStaleCompletion  WarningType = "stale_completion"
	WarningTimezoneFallback WarningType = "timezone_fallback"
	WarningQuarantined      WarningType = "quarantined_record"
)

// Warning is accepted-but-noted input
type Warning struct {
	Type        WarningType
	Description string
}

// CompletionResult is what a completion that passed validation resolves to.
type CompletionResult struct {
	// CivilDate is the completion's date in its own (resolved) timezone.
	CivilDate string
	// Timezone is the zone that was actually used; UTC after a fallback.
	Timezone string
	Warnings []Warning
	Flags    []models.FlagKind
}

// HasWarnings returns true if validation accepted the input with findings
func (r *CompletionResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// FormatReport returns a human-readable list of warnings
func (r *CompletionResult) FormatReport() string {
	if !r.HasWarnings() {
		return "No warnings."
	}
	var b strings.Builder
	b.WriteString("Warnings:\n")
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "- %s\n", w.Description)
	}
	return b.String()
}

// Messages flattens warnings for the audit log.
func (r *CompletionResult) Messages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Description)
	}
	return out
}

// Limits are the tunable thresholds the validator applies.
type Limits struct {
	StaleAfter        time.Duration
	ToleranceDays     int
	HourlyCeiling     int
	DailyCeiling      int
	RejectionCeiling  int
	RejectionLookback time.Duration
}

// DefaultLimits returns the built-in thresholds.
func DefaultLimits() Limits {
	return Limits{
		StaleAfter:        constants.DefaultStaleCompletionAfter,
		ToleranceDays:     constants.DefaultIntegrityToleranceDays,
		HourlyCeiling:     constants.DefaultHourlyCompletionCeiling,
		DailyCeiling:      constants.DefaultDailyCompletionCeiling,
		RejectionCeiling:  constants.DefaultRejectionCeiling,
		RejectionLookback: constants.DefaultSweepLookback,
	}
}

// Validator gates every write into the engine
type Validator struct {
	limits Limits
}

// New creates a new Validator
func New(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Limits returns the thresholds in effect.
func (v *Validator) Limits() Limits {
	return v.limits
}

// ValidateCompletion checks an incoming completion against the actor, the
// clock and the existing events for the same (habit, user).
//
// Hard failures are returned as errors and nothing may be written. A bad
// timezone is not a failure: the result carries UTC and a warning.
func (v *Validator) ValidateCompletion(c models.CompletionEvent, actor string, existing []models.CompletionEvent, now time.Time) (CompletionResult, error) {
	const op = "validation.ValidateCompletion"
	var res CompletionResult

	switch {
	case c.HabitID == "":
		return res, apperrors.New(apperrors.KindInvalidArgument, op, "habit id is required")
	case c.UserID == "":
		return res, apperrors.New(apperrors.KindInvalidArgument, op, "user id is required")
	case c.CompletedAt.IsZero():
		return res, apperrors.New(apperrors.KindInvalidArgument, op, "completedAt is required")
	}
	if actor == "" || actor != c.UserID {
		return res, apperrors.New(apperrors.KindUnauthorized, op, "actor %q does not own completions for user %q", actor, c.UserID)
	}
	if c.CompletedAt.After(now) {
		return res, apperrors.New(apperrors.KindInvalidArgument, op, "completedAt %s is in the future", c.CompletedAt.UTC().Format(time.RFC3339))
	}
	if !c.Difficulty.Valid() {
		return res, apperrors.New(apperrors.KindInvalidArgument, op, "invalid difficulty %q (expected easy, medium or hard)", c.Difficulty)
	}

	loc, err := utils.ResolveLocation(c.Timezone)
	res.Timezone = loc.String()
	if err != nil {
		res.Warnings = append(res.Warnings, Warning{
			Type:        WarningTimezoneFallback,
			Description: fmt.Sprintf("timezone %q is invalid, using UTC", c.Timezone),
		})
	}
	res.CivilDate = c.CompletedAt.In(loc).Format(constants.DateFormat)

	for _, e := range existing {
		if !e.Active || e.ID == c.ID {
			continue
		}
		date, _ := utils.CivilDateOrUTC(e.CompletedAt, e.Timezone)
		if date == res.CivilDate {
			return res, apperrors.New(apperrors.KindAlreadyExists, op, "an active completion already exists for %s", res.CivilDate)
		}
	}

	if v.limits.StaleAfter > 0 && now.Sub(c.CompletedAt) > v.limits.StaleAfter {
		res.Warnings = append(res.Warnings, Warning{
			Type:        WarningStaleCompletion,
			Description: fmt.Sprintf("completion is %s old", now.Sub(c.CompletedAt).Truncate(time.Minute)),
		})
		res.Flags = append(res.Flags, models.FlagBackdated)
	}

	return res, nil
}

// Quarantine splits events read from the store into schema-valid ones and
// warnings for the rest. Quarantined events never reach the calculator.
func Quarantine(events []models.CompletionEvent) ([]models.CompletionEvent, []Warning) {
	valid := make([]models.CompletionEvent, 0, len(events))
	var warnings []Warning
	for _, e := range events {
		if err := e.Validate(); err != nil {
			warnings = append(warnings, Warning{Type: WarningQuarantined, Description: err.Error()})
			continue
		}
		valid = append(valid, e)
	}
	return valid, warnings
}
