package storage

import (
	"context"
	"time"

	"github.com/julianstephens/habitstreak/internal/models"
)

// Reader holds the queries available both inside and outside a transaction.
type Reader interface {
	// Habits
	GetHabit(ctx context.Context, id string) (models.Habit, error)
	ListHabits(ctx context.Context, userID string, includeArchived bool) ([]models.Habit, error)

	// Completions returns every completion for key, inactive ones included,
	// ordered by completedAt then createdAt.
	GetCompletions(ctx context.Context, key models.Key) ([]models.CompletionEvent, error)
	// GetUserCompletionsSince returns one user's completions across habits
	// with completedAt at or after since.
	GetUserCompletionsSince(ctx context.Context, userID string, since time.Time) ([]models.CompletionEvent, error)

	// GetStreakState returns nil, nil when no state was ever persisted.
	GetStreakState(ctx context.Context, key models.Key) (*models.StreakState, error)

	ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error)
	ListFlags(ctx context.Context, userID string) ([]models.FraudFlag, error)
}

// Tx is one isolation scope. Everything written through it commits or rolls
// back together.
type Tx interface {
	Reader

	AddHabit(ctx context.Context, habit models.Habit) error
	SetHabitArchived(ctx context.Context, id string, archivedAt *time.Time) error
	// PurgeHabit physically removes a habit with its completions, streak
	// states and flags. Audit entries are kept.
	PurgeHabit(ctx context.Context, id string) error

	// PutCompletion appends an event. A second active completion on the same
	// civil date fails with already_exists.
	PutCompletion(ctx context.Context, event models.CompletionEvent, civilDate string) error
	SetCompletionActive(ctx context.Context, id string, active bool, at time.Time) error

	// SaveStreakState writes state if its Version still matches the stored
	// row (0 means insert) and returns it with the new Version. A stale
	// version fails with conflict.
	SaveStreakState(ctx context.Context, state models.StreakState) (models.StreakState, error)

	AppendAudit(ctx context.Context, entry models.AuditLogEntry) error
	// RecordFraudFlag stores flag unless one with the same user, habit, kind
	// and window key exists. It reports whether a row was written.
	RecordFraudFlag(ctx context.Context, flag models.FraudFlag) (bool, error)
}

// Provider is a transactional habit store.
type Provider interface {
	Reader

	// Lifecycle
	Init() error
	Load() error
	Close() error

	// RunTransaction runs fn in one isolation scope. If fn returns an error
	// the transaction is rolled back and that error is returned. Write
	// collisions with a concurrent transaction surface as conflict errors.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Migrate applies pending schema migrations and returns how many ran.
	Migrate(logFn func(string)) (int, error)

	// Utils
	GetConfigPath() string
}
