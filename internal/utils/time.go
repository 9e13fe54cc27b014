package utils

import (
	"time"

	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// Empty means UTC; the process-local zone is never consulted.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == constants.DefaultTimezone {
		return time.UTC, nil
	}
	if timezone == "Local" {
		return nil, apperrors.New(apperrors.KindInvalidTimezone, "utils.LoadLocation", "process-local timezone is not allowed")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalidTimezone, "utils.LoadLocation", "invalid timezone %q", timezone)
	}
	return loc, nil
}

// ResolveLocation is LoadLocation with the UTC fallback applied. The error is
// still returned so the caller can emit its warning.
func ResolveLocation(timezone string) (*time.Location, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.UTC, err
	}
	return loc, nil
}

// ToCivilDate converts an instant to the calendar date (YYYY-MM-DD) it falls
// on in timezone.
func ToCivilDate(instant time.Time, timezone string) (string, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return "", err
	}
	return instant.In(loc).Format(constants.DateFormat), nil
}

// CivilDateOrUTC is ToCivilDate falling back to UTC on a bad timezone.
func CivilDateOrUTC(instant time.Time, timezone string) (string, error) {
	loc, err := ResolveLocation(timezone)
	return instant.In(loc).Format(constants.DateFormat), err
}

// ParseCivilDate parses YYYY-MM-DD as a zone-free calendar date (UTC midnight).
func ParseCivilDate(date string) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, date)
	if err != nil {
		return time.Time{}, apperrors.New(apperrors.KindInvalidArgument, "utils.ParseCivilDate", "invalid date %q (expected YYYY-MM-DD)", date)
	}
	return t, nil
}

// DaysBetween returns d2 - d1 in whole calendar days. Both must be YYYY-MM-DD.
func DaysBetween(d1, d2 string) (int, error) {
	t1, err := ParseCivilDate(d1)
	if err != nil {
		return 0, err
	}
	t2, err := ParseCivilDate(d2)
	if err != nil {
		return 0, err
	}
	// UTC midnights are exactly 24h apart, DST never applies.
	return int(t2.Sub(t1).Hours() / 24), nil
}

// IsConsecutive reports whether d2 is exactly the day after d1.
func IsConsecutive(d1, d2 string) bool {
	diff, err := DaysBetween(d1, d2)
	return err == nil && diff == 1
}

// AddDays shifts a civil date by n days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseCivilDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(constants.DateFormat), nil
}

// TodayIn returns now's civil date in loc together with yesterday's.
func TodayIn(now time.Time, loc *time.Location) (today, yesterday string) {
	local := now.In(loc)
	today = local.Format(constants.DateFormat)
	yesterday = local.AddDate(0, 0, -1).Format(constants.DateFormat)
	return today, yesterday
}

// ParseDateInLocation parses a date string (YYYY-MM-DD) as midnight in loc.
func ParseDateInLocation(dateStr string, loc *time.Location) (time.Time, error) {
	t, err := ParseCivilDate(dateStr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	_, err := LoadLocation(timezone)
	return err == nil
}
