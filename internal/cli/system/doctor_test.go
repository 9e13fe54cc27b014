package system

import (
	"strings"
	"testing"

	"github.com/julianstephens/habitstreak/internal/backup"
	"github.com/julianstephens/habitstreak/internal/storage/sqlite"
)

func TestDoctorCmd_HealthyDB(t *testing.T) {
	ctx, _, out := setupWithHabit(t)

	// The tray is usually absent in tests; that is only a warning.
	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Fatalf("doctor command failed on healthy database: %v\n%s", err, out.String())
	}
	for _, want := range []string{
		"✓ Database reachable: OK",
		"✓ Migrations complete: OK",
		"✓ Streak states: OK",
		"⚠ Backups present: WARNING",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestDoctorCmd_BackupsPresent(t *testing.T) {
	ctx, _, out := setupWithHabit(t)
	if _, err := backup.NewManager(ctx.Store.GetConfigPath()).CreateBackup("test"); err != nil {
		t.Fatalf("failed to create backup: %v", err)
	}

	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Fatalf("doctor command failed: %v", err)
	}
	if !strings.Contains(out.String(), "✓ Backups present: OK") {
		t.Errorf("backup should be found:\n%s", out.String())
	}
}

func TestDoctorCmd_MissingDatabase(t *testing.T) {
	ctx, _, out := setupTestDB(t)

	if err := (&DoctorCmd{}).Run(ctx); err == nil {
		t.Fatal("doctor should fail without a database")
	}
	for _, want := range []string{
		"❌ Database reachable: FAIL",
		"⊘ Migrations complete: SKIPPED (database not reachable)",
		"⊘ Streak states: SKIPPED (database not reachable)",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestDoctorCmd_MissingStreakState(t *testing.T) {
	ctx, habit, out := setupWithHabit(t)
	db := ctx.Store.(*sqlite.Store).GetDB()
	if _, err := db.Exec("DELETE FROM streak_states WHERE habit_id = ?", habit.ID); err != nil {
		t.Fatalf("failed to delete streak state: %v", err)
	}

	if err := (&DoctorCmd{}).Run(ctx); err == nil {
		t.Fatal("doctor should fail when a habit has no streak state")
	}
	if !strings.Contains(out.String(), habit.ID+" has no streak state") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}
