package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("record_completion", "", 10*time.Millisecond)
	m.ObserveOperation("record_completion", "already_exists", time.Millisecond)
	m.ObserveOperation("record_completion", "", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("record_completion", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("record_completion", "already_exists")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestCounters(t *testing.T) {
	m := New()
	m.Retry("use_freeze")
	m.Retry("use_freeze")
	m.Correction()
	m.FraudFlag("hourly_ceiling")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.SweepItem(true)
	m.SweepItem(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("use_freeze")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.corrections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fraudFlags.WithLabelValues("hourly_ceiling")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepItems.WithLabelValues("failed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("x", "", time.Second)
	m.Retry("x")
	m.Correction()
	m.FraudFlag("x")
	m.CacheLookup(true)
	m.SweepItem(true)
	m.SweepFinished(time.Second, time.Now())
	assert.Nil(t, m.Registry())
	assert.Error(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	at := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	m.SweepFinished(2*time.Second, at)

	path := filepath.Join(t.TempDir(), "habitstreak.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, "habitstreak_last_sweep_timestamp_seconds"), out)
	assert.True(t, strings.Contains(out, "habitstreak_sweep_duration_seconds_count 1"), out)
}
