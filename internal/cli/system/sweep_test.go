package system

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/habitstreak/internal/engine"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/scheduler"
)

func TestSweepCmd(t *testing.T) {
	ctx, _, out := setupWithHabit(t)
	textfile := filepath.Join(t.TempDir(), "habitstreak.prom")

	if err := (&SweepCmd{Textfile: textfile}).Run(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !strings.Contains(out.String(), "Swept 1 habit(s) for 1 user(s)") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
	if !strings.Contains(string(data), "habitstreak_last_sweep_timestamp_seconds") {
		t.Errorf("textfile missing sweep metrics:\n%s", data)
	}
}

func TestSweepCmd_JSON(t *testing.T) {
	ctx, _, out := setupWithHabit(t)
	if _, err := ctx.Engine.AddHabit(engine.WithActor(ctx.Ctx(), "u2"), "u2", "run", "Europe/Berlin"); err != nil {
		t.Fatalf("failed to add habit: %v", err)
	}

	if err := (&SweepCmd{JSON: true}).Run(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	var report scheduler.SweepReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if report.Habits != 2 || report.Users != 2 || report.Reconciled != 2 || !report.OK() {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestAuditCmd(t *testing.T) {
	ctx, habit, out := setupWithHabit(t)
	rctx := ctx.Ctx()

	// One accepted, one rejected as future.
	for _, at := range []time.Time{testNow.Add(-time.Hour), testNow.Add(time.Hour)} {
		_, _, _ = ctx.Engine.RecordCompletion(rctx, engine.CompletionRequest{
			HabitID:     habit.ID,
			UserID:      habit.UserID,
			CompletedAt: at,
			Timezone:    "UTC",
			Difficulty:  models.DifficultyMedium,
		})
	}

	out.Reset()
	if err := (&AuditCmd{Limit: 50}).Run(ctx); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	for _, want := range []string{"habit_created", "completion_recorded", "mutation_rejected", "in the future"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("audit output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := (&AuditCmd{Action: []string{"mutation_rejected"}, Limit: 50, JSON: true}).Run(ctx); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	var entries []models.AuditLogEntry
	if err := json.Unmarshal(out.Bytes(), &entries); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if len(entries) != 1 || entries[0].Action != models.AuditRejected {
		t.Errorf("expected one rejection, got %+v", entries)
	}

	if err := (&AuditCmd{Since: -time.Hour}).Run(ctx); err == nil {
		t.Error("negative --since should be rejected")
	}
}

func TestFlagsCmd(t *testing.T) {
	ctx, _, out := setupWithHabit(t)

	if err := (&FlagsCmd{}).Run(ctx); err != nil {
		t.Fatalf("flags failed: %v", err)
	}
	if !strings.Contains(out.String(), "No suspicious activity flagged.") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}
