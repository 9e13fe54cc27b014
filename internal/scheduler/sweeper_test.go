package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitstreak/internal/config"
	"github.com/julianstephens/habitstreak/internal/engine"
	"github.com/julianstephens/habitstreak/internal/metrics"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/storage/sqlite"
)

type fakeTarget struct {
	habits   []models.Habit
	failOn   map[string]bool
	block    time.Duration
	inflight int32
	peak     int32
	scanned  sync.Map
}

func (f *fakeTarget) ListHabits(context.Context, string, bool) ([]models.Habit, error) {
	return f.habits, nil
}

func (f *fakeTarget) Reconcile(ctx context.Context, habitID, userID string) (models.Outcome, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	if f.block > 0 {
		select {
		case <-time.After(f.block):
		case <-ctx.Done():
			return models.Outcome{}, ctx.Err()
		}
	}
	if f.failOn[habitID] {
		return models.Outcome{}, errors.New("boom")
	}
	return models.Outcome{HabitID: habitID, UserID: userID, Changed: habitID == "h1", StreakBroken: habitID == "h1"}, nil
}

func (f *fakeTarget) ScanUser(_ context.Context, userID string) ([]models.FraudFlag, error) {
	f.scanned.Store(userID, true)
	if f.failOn[userID] {
		return nil, errors.New("scan failed")
	}
	return []models.FraudFlag{{UserID: userID, Kind: models.FlagDailyCeiling}}, nil
}

func habits(n int) []models.Habit {
	out := make([]models.Habit, n)
	for i := range out {
		out[i] = models.Habit{ID: "h" + string(rune('0'+i)), UserID: "u" + string(rune('0'+i%2))}
	}
	return out
}

func testPolicy() config.SweepPolicy {
	return config.SweepPolicy{
		Timeout:     5 * time.Second,
		ItemTimeout: time.Second,
		Concurrency: 2,
		Lookback:    24 * time.Hour,
		Interval:    time.Hour,
	}
}

func TestRunRecordsFailuresWithoutAborting(t *testing.T) {
	target := &fakeTarget{habits: habits(6), failOn: map[string]bool{"h2": true, "u1": true}}
	m := metrics.New()
	s := NewSweeper(target, testPolicy(), WithMetrics(m))

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Habits)
	assert.Equal(t, 5, report.Reconciled)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Broken)
	assert.Equal(t, 2, report.Users)
	assert.Len(t, report.Flags, 1)
	assert.False(t, report.OK())

	require.Len(t, report.Failures, 2)
	assert.Equal(t, Failure{Stage: StageReconcile, HabitID: "h2", UserID: "u0", Error: "boom"}, report.Failures[0])
	assert.Equal(t, StageFraudScan, report.Failures[1].Stage)
	assert.Equal(t, "u1", report.Failures[1].UserID)

	_, scanned := target.scanned.Load("u0")
	assert.True(t, scanned)
	count, err := testutil.GatherAndCount(m.Registry(), "habitstreak_last_sweep_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "habitstreak.prom")
	s := NewSweeper(&fakeTarget{habits: habits(2)}, testPolicy(), WithMetrics(metrics.New()), WithTextfile(path))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "habitstreak_last_sweep_timestamp_seconds")
	assert.Contains(t, string(data), "habitstreak_sweep_items_total")
}

func TestRunBoundsConcurrency(t *testing.T) {
	target := &fakeTarget{habits: habits(8), block: 20 * time.Millisecond}
	s := NewSweeper(target, testPolicy())

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.LessOrEqual(t, atomic.LoadInt32(&target.peak), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&target.peak), int32(1))
}

func TestRunItemTimeout(t *testing.T) {
	target := &fakeTarget{habits: habits(2), block: time.Second}
	p := testPolicy()
	p.ItemTimeout = 10 * time.Millisecond
	s := NewSweeper(target, p)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, StageReconcile, f.Stage)
		assert.Contains(t, f.Error, "deadline")
	}
}

func TestRunEveryStopsWithContext(t *testing.T) {
	target := &fakeTarget{habits: habits(1)}
	s := NewSweeper(target, testPolicy())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.RunEvery(ctx, 10*time.Millisecond))
	_, scanned := target.scanned.Load("u0")
	assert.True(t, scanned)
}

func TestSweepReconcilesEngineState(t *testing.T) {
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })

	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	clock := now.AddDate(0, 0, -30)
	eng := engine.New(store, engine.WithClock(func() time.Time { return clock }))

	actx := engine.WithActor(context.Background(), "u1")
	h, err := eng.AddHabit(actx, "u1", "stretch", "UTC")
	require.NoError(t, err)
	_, err = eng.AddHabit(engine.WithActor(context.Background(), "u2"), "u2", "stretch", "UTC")
	require.NoError(t, err)

	clock = now
	for _, d := range []int{-1, 0} {
		_, _, err := eng.RecordCompletion(actx, engine.CompletionRequest{
			HabitID:     h.ID,
			UserID:      "u1",
			CompletedAt: now.AddDate(0, 0, d).Add(-time.Hour),
			Timezone:    "UTC",
			Difficulty:  models.DifficultyEasy,
		})
		require.NoError(t, err)
	}

	clock = now.AddDate(0, 0, 4)
	s := NewSweeper(eng, config.Defaults().Sweep)
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "failures: %v", report.Failures)
	assert.Equal(t, 2, report.Habits)
	assert.Equal(t, 2, report.Users)
	assert.Equal(t, 1, report.Broken)

	state, err := eng.CalculateStreak(context.Background(), h.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentStreak)
	assert.Equal(t, 2, state.BestStreak)

	again, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Changed)
}
