package system

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/julianstephens/habitstreak/internal/engine"
	"github.com/julianstephens/habitstreak/internal/models"
)

func TestDebugDBPathCmd(t *testing.T) {
	ctx, dbPath, out := setupTestDB(t)

	if err := (&DebugDBPathCmd{}).Run(ctx); err != nil {
		t.Fatalf("db-path failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got["path"] != dbPath {
		t.Errorf("path = %q, want %q", got["path"], dbPath)
	}
}

func TestDebugDumpHabitIncludesUndoneCompletions(t *testing.T) {
	ctx, habit, out := setupWithHabit(t)
	rctx := ctx.Ctx()

	_, _, err := ctx.Engine.RecordCompletion(rctx, engine.CompletionRequest{
		HabitID:     habit.ID,
		UserID:      habit.UserID,
		CompletedAt: testNow.Add(-time.Hour),
		Timezone:    "UTC",
		Difficulty:  models.DifficultyEasy,
	})
	if err != nil {
		t.Fatalf("failed to record completion: %v", err)
	}
	if _, err := ctx.Engine.UndoLastCompletion(rctx, habit.ID, habit.UserID); err != nil {
		t.Fatalf("failed to undo: %v", err)
	}

	out.Reset()
	if err := (&DebugDumpHabitCmd{Habit: "read"}).Run(ctx); err != nil {
		t.Fatalf("dump-habit failed: %v", err)
	}
	var dump habitDump
	if err := json.Unmarshal(out.Bytes(), &dump); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if dump.Habit.ID != habit.ID {
		t.Errorf("habit = %q, want %q", dump.Habit.ID, habit.ID)
	}
	if len(dump.Completions) != 1 || dump.Completions[0].Active {
		t.Errorf("expected one inactive completion, got %+v", dump.Completions)
	}
	if dump.State == nil || dump.State.CurrentStreak != 0 {
		t.Errorf("unexpected state %+v", dump.State)
	}
}
