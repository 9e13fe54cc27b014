package streaks

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/engine"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/utils"
)

type DoneCmd struct {
	Habit      string `arg:"" help:"Habit id or name."`
	At         string `help:"When it was done: RFC3339, 'YYYY-MM-DD HH:MM' or 'YYYY-MM-DD' (noon). Defaults to now."`
	Timezone   string `name:"tz" help:"IANA timezone the completion happened in. Defaults to the habit's."`
	Difficulty string `help:"How hard it was." enum:"easy,medium,hard" default:"medium"`
	Notes      string `help:"Free-form notes."`
}

func (c *DoneCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}

	tz := c.Timezone
	if tz == "" {
		tz = habit.Timezone
	}
	at, err := parseAt(c.At, tz, ctx.Engine.Now())
	if err != nil {
		return err
	}

	event, out, err := ctx.Engine.RecordCompletion(rctx, engine.CompletionRequest{
		HabitID:     habit.ID,
		UserID:      habit.UserID,
		CompletedAt: at,
		Timezone:    tz,
		Difficulty:  models.Difficulty(c.Difficulty),
		Notes:       c.Notes,
	})
	if err != nil {
		return err
	}

	date, _ := utils.CivilDateOrUTC(event.CompletedAt, event.Timezone)
	ctx.Printf("✓ %s done for %s\n", habit.Name, date)
	printOutcome(ctx, out)
	return nil
}

// parseAt reads a completion time in tz. An empty value means now.
func parseAt(value, tz string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	loc, err := utils.ResolveLocation(tz)
	if err != nil {
		return time.Time{}, apperrors.Wrap(apperrors.KindInvalidTimezone, "cli.parseAt", err)
	}
	if t, err := time.ParseInLocation(constants.DateFormat+" "+constants.TimeFormat, value, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(constants.DateFormat, value, loc); err == nil {
		return t.Add(constants.FreezeCompletionHour * time.Hour), nil
	}
	return time.Time{}, apperrors.New(apperrors.KindInvalidArgument, "cli.parseAt", "cannot parse time %q", value)
}

type UndoCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	Yes   bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *UndoCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}

	if !c.Yes {
		ok, err := ctx.Ask(fmt.Sprintf("Undo the latest completion of %q?", habit.Name))
		if err != nil {
			return err
		}
		if !ok {
			ctx.Println("Cancelled.")
			return nil
		}
	}

	out, err := ctx.Engine.UndoLastCompletion(rctx, habit.ID, habit.UserID)
	if err != nil {
		return err
	}
	ctx.Printf("Undid latest completion of %s\n", habit.Name)
	printOutcome(ctx, out)
	return nil
}

type FreezeCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	Date  string `arg:"" help:"Missed day to cover (YYYY-MM-DD)."`
}

func (c *FreezeCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}

	used, out, err := ctx.Engine.UseFreeze(rctx, habit.ID, habit.UserID, c.Date)
	if err != nil {
		return err
	}
	if !used {
		ctx.Printf("No streak freeze available. Reach a %d-day streak to earn one.\n", ctx.Engine.Policy().Milestones.FreezeReward)
		return nil
	}
	ctx.Printf("❄ Froze %s for %s (%d left)\n", c.Date, habit.Name, out.State.FreezesAvailable)
	printOutcome(ctx, out)
	return nil
}

func printOutcome(ctx *cli.Context, out models.Outcome) {
	s := out.State
	ctx.Printf("  Streak: %d day(s), best %d\n", s.CurrentStreak, s.BestStreak)
	for _, m := range out.NewMilestones {
		ctx.Printf("  🎉 %d-day milestone reached!\n", m.Days)
	}
	if out.StreakBroken {
		ctx.Printf("  Streak of %d day(s) ended.\n", out.PreviousStreak)
	}
	if out.Corrected {
		ctx.Println("  Note: the stored streak was recomputed from history.")
	}
	for _, f := range out.Flags {
		ctx.Printf("  ⚠ flagged for review: %s\n", f)
	}
}
