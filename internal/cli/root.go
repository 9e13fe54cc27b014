package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitstreak/internal/backup"
	"github.com/julianstephens/habitstreak/internal/config"
	"github.com/julianstephens/habitstreak/internal/engine"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/logger"
	"github.com/julianstephens/habitstreak/internal/metrics"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/notifier"
	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/storage/sqlite"
)

type Context struct {
	Store   storage.Provider
	Engine  *engine.Engine
	Policy  config.Policy
	Metrics *metrics.Metrics
	// Notifier delivers desktop notifications, normally a *notifier.Tray.
	Notifier notifier.Sender
	// Actor is the user every command runs as.
	Actor string
	Out   io.Writer
	// Confirm asks a yes/no question; nil uses an interactive prompt.
	Confirm func(title string) (bool, error)
}

// Ctx returns a context carrying the actor.
func (c *Context) Ctx() context.Context {
	return engine.WithActor(context.Background(), c.Actor)
}

func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Writer(), format, args...)
}

func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.Writer(), args...)
}

// Writer is Out, or stdout when Out is nil.
func (c *Context) Writer() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// Ask runs Confirm, falling back to a huh prompt.
func (c *Context) Ask(title string) (bool, error) {
	if c.Confirm != nil {
		return c.Confirm(title)
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// PerformAutomaticBackup snapshots SQLite stores before destructive work.
// Failures are only logged; the returned path is empty then.
func (c *Context) PerformAutomaticBackup(reason string) string {
	if _, ok := c.Store.(*sqlite.Store); !ok {
		return ""
	}
	mgr := backup.NewManager(c.Store.GetConfigPath())
	path, err := mgr.CreateBackup(reason)
	if err != nil {
		logger.Warn("Automatic backup failed", "error", err)
		return ""
	}
	return path
}

// ResolveHabit accepts a habit id or the name of one of the actor's habits.
func (c *Context) ResolveHabit(ctx context.Context, ref string) (models.Habit, error) {
	h, err := c.Engine.GetHabit(ctx, ref)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return models.Habit{}, err
	}

	habits, err := c.Engine.ListHabits(ctx, c.Actor, true)
	if err != nil {
		return models.Habit{}, err
	}
	for _, h := range habits {
		if strings.EqualFold(h.Name, strings.TrimSpace(ref)) {
			return h, nil
		}
	}
	return models.Habit{}, apperrors.New(apperrors.KindNotFound, "cli.ResolveHabit", "no habit %q", ref)
}
