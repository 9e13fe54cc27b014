package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/julianstephens/habitstreak/internal/config"
	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/logger"
	"github.com/julianstephens/habitstreak/internal/metrics"
	"github.com/julianstephens/habitstreak/internal/models"
)

// Target is the part of the engine a sweep drives.
type Target interface {
	ListHabits(ctx context.Context, userID string, includeArchived bool) ([]models.Habit, error)
	Reconcile(ctx context.Context, habitID, userID string) (models.Outcome, error)
	ScanUser(ctx context.Context, userID string) ([]models.FraudFlag, error)
}

// Stage names the step of a sweep an item failed in
type Stage string

const (
	StageReconcile Stage = "reconcile"
	StageFraudScan Stage = "fraud_scan"
)

// Failure is one item that did not complete during a sweep.
type Failure struct {
	Stage   Stage  `json:"stage"`
	HabitID string `json:"habit_id,omitempty"`
	UserID  string `json:"user_id"`
	Error   string `json:"error"`
}

// SweepReport summarises one sweep.
type SweepReport struct {
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Habits     int                `json:"habits"`
	Reconciled int                `json:"reconciled"`
	Changed    int                `json:"changed"`
	Broken     int                `json:"broken"`
	Corrected  int                `json:"corrected"`
	Users      int                `json:"users"`
	Flags      []models.FraudFlag `json:"flags,omitempty"`
	Failures   []Failure          `json:"failures,omitempty"`
}

// OK reports whether every item succeeded.
func (r SweepReport) OK() bool {
	return len(r.Failures) == 0
}

// Sweeper reconciles every active habit and scans every user for
// suspicious activity.
type Sweeper struct {
	target   Target
	policy   config.SweepPolicy
	metrics  *metrics.Metrics
	textfile string
	now      func() time.Time
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithMetrics records sweep progress in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithTextfile writes the metrics registry to path after every sweep, for
// the node_exporter textfile collector. It needs WithMetrics.
func WithTextfile(path string) Option {
	return func(s *Sweeper) { s.textfile = path }
}

// WithClock overrides the wall clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(target Target, policy config.SweepPolicy, opts ...Option) *Sweeper {
	s := &Sweeper{
		target: target,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Concurrency < 1 {
		s.policy.Concurrency = 1
	}
	if s.policy.ItemTimeout <= 0 {
		s.policy.ItemTimeout = constants.DefaultSweepItemTimeout
	}
	return s
}

// Run performs one sweep. Item failures are collected in the report; the
// returned error is set only when the habit list could not be read.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	report := SweepReport{StartedAt: s.now()}
	started := time.Now()

	if s.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.Timeout)
		defer cancel()
	}

	habits, err := s.target.ListHabits(ctx, "", false)
	if err != nil {
		logger.Error("Sweep could not list habits", "error", err)
		return report, err
	}
	report.Habits = len(habits)

	var mu sync.Mutex
	s.each(ctx, len(habits), func(ictx context.Context, i int) {
		h := habits[i]
		out, err := s.target.Reconcile(ictx, h.ID, h.UserID)
		s.metrics.SweepItem(err == nil)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			logger.Error("Sweep reconcile failed", "habit", h.ID, "user", h.UserID, "error", err)
			report.Failures = append(report.Failures, Failure{Stage: StageReconcile, HabitID: h.ID, UserID: h.UserID, Error: err.Error()})
			return
		}
		report.Reconciled++
		if out.Changed {
			report.Changed++
		}
		if out.StreakBroken {
			report.Broken++
		}
		if out.Corrected {
			report.Corrected++
		}
	})

	sortFailures(report.Failures)
	reconcileFailures := len(report.Failures)

	users := distinctUsers(habits)
	report.Users = len(users)
	s.each(ctx, len(users), func(ictx context.Context, i int) {
		flags, err := s.target.ScanUser(ictx, users[i])
		s.metrics.SweepItem(err == nil)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			logger.Error("Sweep fraud scan failed", "user", users[i], "error", err)
			report.Failures = append(report.Failures, Failure{Stage: StageFraudScan, UserID: users[i], Error: err.Error()})
			return
		}
		report.Flags = append(report.Flags, flags...)
	})
	sortFailures(report.Failures[reconcileFailures:])

	report.FinishedAt = s.now()
	s.metrics.SweepFinished(time.Since(started), report.FinishedAt)
	if s.textfile != "" && s.metrics != nil {
		if err := s.metrics.WriteTextfile(s.textfile); err != nil {
			logger.Warn("Could not write metrics textfile", "path", s.textfile, "error", err)
		}
	}
	logger.Info("Sweep finished",
		"habits", report.Habits,
		"reconciled", report.Reconciled,
		"changed", report.Changed,
		"broken", report.Broken,
		"users", report.Users,
		"flags", len(report.Flags),
		"failures", len(report.Failures),
		"elapsed", time.Since(started).Truncate(time.Millisecond),
	)
	return report, nil
}

// each runs fn for 0..n-1 on at most Concurrency workers, each call under
// its own ItemTimeout. Once ctx ends the remaining items still run with a
// cancelled context and fail fast, so they show up in the report.
func (s *Sweeper) each(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if n == 0 {
		return
	}
	workers := s.policy.Concurrency
	if workers > n {
		workers = n
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				ictx, cancel := context.WithTimeout(ctx, s.policy.ItemTimeout)
				fn(ictx, i)
				cancel()
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// RunEvery sweeps immediately and then once per interval until ctx is done.
func (s *Sweeper) RunEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.policy.Interval
	}
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Run(ctx); err != nil {
			logger.Warn("Sweep aborted", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("Sweep loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func sortFailures(failures []Failure) {
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].UserID != failures[j].UserID {
			return failures[i].UserID < failures[j].UserID
		}
		return failures[i].HabitID < failures[j].HabitID
	})
}

func distinctUsers(habits []models.Habit) []string {
	seen := make(map[string]bool)
	var users []string
	for _, h := range habits {
		if !seen[h.UserID] {
			seen[h.UserID] = true
			users = append(users, h.UserID)
		}
	}
	sort.Strings(users)
	return users
}
