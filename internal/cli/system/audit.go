package system

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
)

type AuditCmd struct {
	Entity string        `help:"Only entries about this habit, completion or streak id."`
	Action []string      `help:"Only these actions (e.g. mutation_rejected, integrity_corrected)." sep:","`
	Since  time.Duration `help:"Only entries newer than this, e.g. 72h."`
	Limit  int           `help:"Maximum number of entries." default:"50"`
	JSON   bool          `help:"Print entries as JSON."`
}

func (c *AuditCmd) Run(ctx *cli.Context) error {
	filter := models.AuditFilter{
		UserID:   ctx.Actor,
		EntityID: c.Entity,
		Limit:    c.Limit,
	}
	for _, a := range c.Action {
		filter.Actions = append(filter.Actions, models.AuditAction(strings.TrimSpace(a)))
	}
	if c.Since < 0 {
		return apperrors.New(apperrors.KindInvalidArgument, "cli.audit", "--since must not be negative")
	}
	if c.Since > 0 {
		filter.Since = ctx.Engine.Now().Add(-c.Since)
	}

	entries, err := ctx.Engine.ListAudit(ctx.Ctx(), filter)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(ctx, entries)
	}
	if len(entries) == 0 {
		ctx.Println("No audit entries found.")
		return nil
	}

	for _, e := range entries {
		ctx.Printf("%s  %-22s %-12s %s\n",
			e.Timestamp.Local().Format(constants.DateFormat+" "+constants.TimeFormat), e.Action, e.EntityType, e.EntityID)
		for _, v := range e.ValidationErrors {
			ctx.Printf("    ✗ %s\n", v)
		}
		for _, f := range e.SuspiciousFlags {
			ctx.Printf("    ⚠ %s\n", f)
		}
	}
	return nil
}

type FlagsCmd struct {
	JSON bool `help:"Print flags as JSON."`
}

func (c *FlagsCmd) Run(ctx *cli.Context) error {
	flags, err := ctx.Engine.ListFlags(ctx.Ctx(), ctx.Actor)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(ctx, flags)
	}
	if len(flags) == 0 {
		ctx.Println("No suspicious activity flagged.")
		return nil
	}

	for _, f := range flags {
		habit := f.HabitID
		if habit == "" {
			habit = "-"
		}
		ctx.Printf("%s  %-22s %-36s %s\n",
			f.DetectedAt.Local().Format(constants.DateFormat+" "+constants.TimeFormat), f.Kind, habit, f.Detail)
	}
	return nil
}

func printJSON(ctx *cli.Context, v interface{}) error {
	enc := json.NewEncoder(ctx.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
