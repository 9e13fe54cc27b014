// Package engine is the only writer of streak state. Every mutation runs
// read, validate, compute and commit inside one store transaction per
// (habit, user) and is retried when the store reports a write conflict.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitstreak/internal/cache"
	"github.com/julianstephens/habitstreak/internal/config"
	"github.com/julianstephens/habitstreak/internal/metrics"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/streak"
	"github.com/julianstephens/habitstreak/internal/validation"
)

// OutcomeSink receives the outcome of every successful mutation. The sink
// decides what, if anything, to tell the user.
type OutcomeSink interface {
	Publish(ctx context.Context, outcome models.Outcome)
}

// calculateFunc derives a fresh state from the event log.
type calculateFunc func(key models.Key, events []models.CompletionEvent, today string) (models.StreakState, []error)

type Engine struct {
	store     storage.Provider
	policy    config.Policy
	validator *validation.Validator
	detector  *validation.Detector
	ladder    streak.Ladder
	cache     cache.Cache
	sink      OutcomeSink
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
	calculate calculateFunc
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPolicy replaces the default policy.
func WithPolicy(p config.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithCache sets the streak read cache.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithSink sets the notification collaborator.
func WithSink(s OutcomeSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator replaces uuid.NewString for new entities.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// New creates an engine over an initialized store.
func New(store storage.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		policy:    config.Defaults(),
		cache:     cache.Nop{},
		now:       time.Now,
		newID:     uuid.NewString,
		calculate: streak.CalculateState,
	}
	for _, opt := range opts {
		opt(e)
	}
	limits := e.policy.Limits()
	e.validator = validation.New(limits)
	e.detector = validation.NewDetector(limits)
	e.ladder = e.policy.Ladder()
	return e
}

// Policy returns the policy in effect.
func (e *Engine) Policy() config.Policy {
	return e.policy
}

// SetSink replaces the outcome sink. Call it before the engine is shared.
func (e *Engine) SetSink(sink OutcomeSink) {
	e.sink = sink
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}
