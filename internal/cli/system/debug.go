package system

import (
	"context"

	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/models"
)

type DebugCmd struct {
	DBPath    DebugDBPathCmd    `cmd:"" help:"Show database path."`
	DumpHabit DebugDumpHabitCmd `cmd:"" help:"Dump a habit with its full completion log and streak state as JSON."`
}

type DebugDBPathCmd struct{}

func (cmd *DebugDBPathCmd) Run(ctx *cli.Context) error {
	return printJSON(ctx, map[string]string{"path": ctx.Store.GetConfigPath()})
}

type DebugDumpHabitCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

type habitDump struct {
	Habit       models.Habit             `json:"habit"`
	State       *models.StreakState      `json:"state"`
	Completions []models.CompletionEvent `json:"completions"`
	Flags       []models.FraudFlag       `json:"flags"`
}

// Run reads straight from the store, so undone completions are included.
func (cmd *DebugDumpHabitCmd) Run(ctx *cli.Context) error {
	habit, err := ctx.ResolveHabit(ctx.Ctx(), cmd.Habit)
	if err != nil {
		return err
	}

	rctx := context.Background()
	dump := habitDump{Habit: habit}
	if dump.State, err = ctx.Store.GetStreakState(rctx, habit.Key()); err != nil {
		return err
	}
	if dump.Completions, err = ctx.Store.GetCompletions(rctx, habit.Key()); err != nil {
		return err
	}
	flags, err := ctx.Store.ListFlags(rctx, habit.UserID)
	if err != nil {
		return err
	}
	for _, f := range flags {
		if f.HabitID == habit.ID {
			dump.Flags = append(dump.Flags, f)
		}
	}
	return printJSON(ctx, dump)
}
