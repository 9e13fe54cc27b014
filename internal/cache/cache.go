// Package cache holds derived streak states between reads. Every engine
// commit invalidates its key, so a cached value is never newer than the
// store and at most one TTL older than the last unobserved write from
// another process.
package cache

import (
	"context"

	"github.com/julianstephens/habitstreak/internal/models"
)

// Key is the (habit, user) aggregate a cached state belongs to.
type Key = models.Key

// Cache stores streak states keyed by (habit, user).
type Cache interface {
	// Get returns the cached state; ok is false on a miss.
	Get(ctx context.Context, key Key) (state models.StreakState, ok bool, err error)
	Set(ctx context.Context, key Key, state models.StreakState) error
	Invalidate(ctx context.Context, key Key) error
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, Key) (models.StreakState, bool, error) {
	return models.StreakState{}, false, nil
}

func (Nop) Set(context.Context, Key, models.StreakState) error { return nil }

func (Nop) Invalidate(context.Context, Key) error { return nil }
