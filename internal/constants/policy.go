package constants

import "time"

// Milestone thresholds in days, ascending.
var MilestoneThresholds = []int{7, 30, 60, 100, 365}

const (
	// FreezeRewardThreshold is the milestone that awards a streak freeze.
	FreezeRewardThreshold = 30

	// Transactional update protocol
	DefaultMaxAttempts      = 5
	DefaultBaseBackoff      = 20 * time.Millisecond
	DefaultMaxBackoff       = 500 * time.Millisecond
	DefaultOperationTimeout = 10 * time.Second

	// Validation
	DefaultStaleCompletionAfter = 24 * time.Hour
	// DefaultIntegrityToleranceDays absorbs timezone-boundary races between
	// the merged streak and an independent recomputation.
	DefaultIntegrityToleranceDays = 1

	// Anti-fraud ceilings
	DefaultHourlyCompletionCeiling = 10
	DefaultDailyCompletionCeiling  = 50
	DefaultRejectionCeiling        = 20

	// Sweep
	DefaultSweepTimeout     = 5 * time.Minute
	DefaultSweepItemTimeout = 15 * time.Second
	DefaultSweepConcurrency = 4
	DefaultSweepLookback    = 24 * time.Hour
	DefaultSweepInterval    = time.Hour

	// Cache
	DefaultCacheTTL = 10 * time.Minute

	// Analytics
	DefaultConsistencyWindowDays = 30
	MaxCalendarDays              = 366
)
