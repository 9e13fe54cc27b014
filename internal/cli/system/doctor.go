package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitstreak/internal/backup"
	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/migration"
	"github.com/julianstephens/habitstreak/internal/notifier"
	"github.com/julianstephens/habitstreak/internal/storage/sqlite"
)

// migrationLister is implemented by both SQL stores.
type migrationLister interface {
	PendingMigrations() ([]migration.Migration, error)
}

type severity int

const (
	failure severity = iota
	warning
)

type check struct {
	name string
	sev  severity
	// needsDB checks are skipped when the database is unreachable.
	needsDB bool
	run     func(ctx *cli.Context) error
}

var errSkipped = errors.New("not applicable")

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	checks := []check{
		{name: "Database reachable", run: checkDBReachable},
		{name: "Migrations complete", needsDB: true, run: checkMigrationsComplete},
		{name: "Backups present", sev: warning, run: checkBackupsPresent},
		{name: "Clock/timezone", run: checkClockTimezone},
		{name: "Streak states", needsDB: true, run: checkStreakStates},
		{name: "Notification tray", sev: warning, run: checkTray},
	}

	hasError := false
	dbReachable := true
	for _, c := range checks {
		if c.needsDB && !dbReachable {
			ctx.Printf("⊘ %s: SKIPPED (database not reachable)\n", c.name)
			continue
		}
		err := c.run(ctx)
		switch {
		case err == nil:
			ctx.Printf("✓ %s: OK\n", c.name)
		case errors.Is(err, errSkipped):
			ctx.Printf("⊘ %s: SKIPPED (%v)\n", c.name, err)
		case c.sev == warning:
			ctx.Printf("⚠ %s: WARNING\n", c.name)
			ctx.Printf("   %v\n", err)
		default:
			ctx.Printf("❌ %s: FAIL\n", c.name)
			ctx.Printf("   Error: %v\n", err)
			hasError = true
			if c.name == "Database reachable" {
				dbReachable = false
			}
		}
	}

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	ctx.Println("All diagnostics passed!")
	return nil
}

func checkDBReachable(ctx *cli.Context) error {
	if err := ctx.Store.Load(); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	if _, err := ctx.Store.ListHabits(context.Background(), "", true); err != nil {
		return fmt.Errorf("failed to query database: %w", err)
	}
	return nil
}

func checkMigrationsComplete(ctx *cli.Context) error {
	lister, ok := ctx.Store.(migrationLister)
	if !ok {
		return fmt.Errorf("%w: store has no schema migrations", errSkipped)
	}
	pending, err := lister.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("%d migration(s) pending, run '%s migrate'", len(pending), constants.AppName)
	}
	return nil
}

func checkBackupsPresent(ctx *cli.Context) error {
	if _, ok := ctx.Store.(*sqlite.Store); !ok {
		return fmt.Errorf("%w: backups are SQLite only", errSkipped)
	}
	mgr := backup.NewManager(ctx.Store.GetConfigPath())
	backups, err := mgr.ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found - consider creating one with '%s backup create'", constants.AppName)
	}
	return nil
}

func checkClockTimezone(ctx *cli.Context) error {
	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	// Completions carry IANA names; without tzdata they all fall back to UTC.
	if _, err := time.LoadLocation("America/New_York"); err != nil {
		return fmt.Errorf("timezone database unavailable: %w", err)
	}
	return nil
}

// checkStreakStates verifies that every habit has a persisted state of a
// valid shape. Stale streaks are left to 'reconcile' and 'sweep'.
func checkStreakStates(ctx *cli.Context) error {
	rctx := context.Background()
	habits, err := ctx.Store.ListHabits(rctx, "", true)
	if err != nil {
		return err
	}
	var bad []string
	for _, h := range habits {
		state, err := ctx.Store.GetStreakState(rctx, h.Key())
		switch {
		case err != nil:
			return err
		case state == nil:
			bad = append(bad, fmt.Sprintf("%s has no streak state", h.ID))
		default:
			if err := state.Validate(); err != nil {
				bad = append(bad, err.Error())
			}
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%d problem(s), first: %s", len(bad), bad[0])
	}
	return nil
}

func checkTray(*cli.Context) error {
	if err := notifier.New().Running(); err != nil {
		return fmt.Errorf("milestone notifications will wait for '%s celebrate': %w", constants.AppName, err)
	}
	return nil
}
