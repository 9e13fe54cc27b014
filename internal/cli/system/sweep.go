package system

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/scheduler"
)

type SweepCmd struct {
	Textfile string `help:"Write Prometheus metrics to this file after the sweep (node_exporter textfile collector)." type:"path"`
	JSON     bool   `help:"Print the sweep report as JSON."`
}

// Run reconciles every active habit once and scans every user for
// suspicious activity. Item failures do not abort the sweep but make the
// command exit non-zero.
func (c *SweepCmd) Run(ctx *cli.Context) error {
	report, err := newSweeper(ctx, c.Textfile).Run(context.Background())
	if err != nil {
		return err
	}

	if c.JSON {
		if err := printJSON(ctx, report); err != nil {
			return err
		}
	} else {
		printReport(ctx, report)
	}

	if !report.OK() {
		return fmt.Errorf("sweep finished with %d failure(s)", len(report.Failures))
	}
	return nil
}

type DaemonCmd struct {
	Interval time.Duration `help:"Time between sweeps. Defaults to the policy's sweep interval."`
	Textfile string        `help:"Write Prometheus metrics to this file after every sweep." type:"path"`
}

// Run sweeps until interrupted.
func (c *DaemonCmd) Run(ctx *cli.Context) error {
	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx.Println("Sweeping until interrupted (Ctrl+C to stop)")
	return newSweeper(ctx, c.Textfile).RunEvery(sctx, c.Interval)
}

// newSweeper runs without an actor: sweeps are a trusted internal caller
// that reads and reconciles every user's habits.
func newSweeper(ctx *cli.Context, textfile string) *scheduler.Sweeper {
	opts := []scheduler.Option{scheduler.WithMetrics(ctx.Metrics)}
	if textfile != "" {
		opts = append(opts, scheduler.WithTextfile(textfile))
	}
	return scheduler.NewSweeper(ctx.Engine, ctx.Policy.Sweep, opts...)
}

func printReport(ctx *cli.Context, r scheduler.SweepReport) {
	ctx.Printf("Swept %d habit(s) for %d user(s) in %s\n", r.Habits, r.Users, r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond))
	ctx.Printf("  Reconciled: %d (%d changed, %d broken, %d corrected)\n", r.Reconciled, r.Changed, r.Broken, r.Corrected)
	if len(r.Flags) > 0 {
		ctx.Printf("  New fraud flags: %d\n", len(r.Flags))
		for _, f := range r.Flags {
			ctx.Printf("    ⚠ %s %s: %s\n", f.UserID, f.Kind, f.Detail)
		}
	}
	for _, f := range r.Failures {
		target := f.UserID
		if f.HabitID != "" {
			target = f.HabitID
		}
		ctx.Printf("  ❌ %s %s: %s\n", f.Stage, target, f.Error)
	}
}
