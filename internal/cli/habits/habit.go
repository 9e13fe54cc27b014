package habits

import (
	"fmt"
	"path/filepath"

	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/constants"
)

type HabitCmd struct {
	Add       HabitAddCmd       `cmd:"" help:"Add a new habit."`
	List      HabitListCmd      `cmd:"" help:"List habits."`
	Archive   HabitArchiveCmd   `cmd:"" help:"Archive a habit. History is kept."`
	Unarchive HabitUnarchiveCmd `cmd:"" help:"Bring an archived habit back."`
	Delete    HabitDeleteCmd    `cmd:"" help:"Permanently delete a habit and its history."`
}

type HabitAddCmd struct {
	Name     string `arg:"" help:"Habit name."`
	Timezone string `name:"tz" help:"IANA timezone the habit's days are counted in." default:"UTC" env:"HABITSTREAK_TZ"`
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	habit, err := ctx.Engine.AddHabit(ctx.Ctx(), ctx.Actor, c.Name, c.Timezone)
	if err != nil {
		return err
	}
	ctx.Printf("✓ Added habit %s (%s, %s)\n", habit.Name, habit.ID, habit.Timezone)
	return nil
}

type HabitListCmd struct {
	Archived bool `help:"Include archived habits."`
}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habits, err := ctx.Engine.ListHabits(rctx, ctx.Actor, c.Archived)
	if err != nil {
		return err
	}
	if len(habits) == 0 {
		ctx.Println("No habits found.")
		return nil
	}

	for _, h := range habits {
		state, err := ctx.Engine.CalculateStreak(rctx, h.ID, h.UserID)
		if err != nil {
			return fmt.Errorf("streak for %s: %w", h.Name, err)
		}
		status := ""
		if h.ArchivedAt != nil {
			status = " [ARCHIVED]"
		}
		ctx.Printf("%-24s %3d days (best %d)  %s  %s%s\n",
			h.Name, state.CurrentStreak, state.BestStreak, h.Timezone, h.ID, status)
	}
	return nil
}

type HabitArchiveCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *HabitArchiveCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}
	if _, err := ctx.Engine.ArchiveHabit(rctx, habit.ID); err != nil {
		return err
	}
	ctx.Printf("Archived habit: %s\n", habit.Name)
	return nil
}

type HabitUnarchiveCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *HabitUnarchiveCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}
	if _, err := ctx.Engine.UnarchiveHabit(rctx, habit.ID); err != nil {
		return err
	}
	ctx.Printf("Unarchived habit: %s\n", habit.Name)
	return nil
}

type HabitDeleteCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	Yes   bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *HabitDeleteCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}

	if !c.Yes {
		ok, err := ctx.Ask(fmt.Sprintf("Delete %q and all of its history? This cannot be undone.", habit.Name))
		if err != nil {
			return err
		}
		if !ok {
			ctx.Println("Cancelled.")
			return nil
		}
	}

	snapshot := ctx.PerformAutomaticBackup("habit delete")
	if err := ctx.Engine.DeleteHabit(rctx, habit.ID); err != nil {
		return err
	}
	ctx.Printf("Deleted habit: %s\n", habit.Name)
	if snapshot != "" {
		ctx.Printf("Backup taken before deletion: %s (see '%s backup list')\n", filepath.Base(snapshot), constants.AppName)
	}
	return nil
}
