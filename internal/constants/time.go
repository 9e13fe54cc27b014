package constants

const (
	// DateFormat is the civil date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// TimestampFormat is how instants are persisted: always UTC, fixed width,
	// so stored values sort lexically in time order.
	TimestampFormat = "2006-01-02T15:04:05.000000000Z"

	// DefaultTimezone is used whenever a timezone is missing or cannot be resolved.
	// Never the process-local zone.
	DefaultTimezone = "UTC"

	// FreezeCompletionHour is the local hour a synthetic freeze completion is stamped at.
	FreezeCompletionHour = 12
)
