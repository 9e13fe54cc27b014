package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habitstreak/internal/cache"
	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/cli/backups"
	"github.com/julianstephens/habitstreak/internal/cli/habits"
	"github.com/julianstephens/habitstreak/internal/cli/streaks"
	"github.com/julianstephens/habitstreak/internal/cli/system"
	"github.com/julianstephens/habitstreak/internal/config"
	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/engine"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/keyring"
	"github.com/julianstephens/habitstreak/internal/logger"
	"github.com/julianstephens/habitstreak/internal/metrics"
	"github.com/julianstephens/habitstreak/internal/notifier"
	"github.com/julianstephens/habitstreak/internal/storage"
	"github.com/julianstephens/habitstreak/internal/storage/postgres"
	"github.com/julianstephens/habitstreak/internal/storage/sqlite"
)

var CLI struct {
	Version  kong.VersionFlag
	DB       string `name:"db" help:"SQLite database path." type:"path" default:"${db_path}"`
	Postgres bool   `help:"Use PostgreSQL. The connection string comes from ${conn_env} or the OS keyring."`
	User     string `help:"User to act as. Defaults to the OS user." env:"HABITSTREAK_USER"`
	Policy   string `help:"YAML policy file overriding the built-in limits." type:"path" env:"HABITSTREAK_POLICY"`
	Redis    string `help:"Redis address for a shared streak cache, e.g. localhost:6379." env:"HABITSTREAK_REDIS"`
	Verbose  bool   `short:"v" help:"Verbose logging to stderr."`

	Init    system.InitCmd    `cmd:"" help:"Initialize habitstreak storage."`
	Migrate system.MigrateCmd `cmd:"" help:"Run database migrations."`
	Doctor  system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`

	Habit     habits.HabitCmd      `cmd:"" help:"Manage habits."`
	Done      streaks.DoneCmd      `cmd:"" help:"Record a completion."`
	Undo      streaks.UndoCmd      `cmd:"" help:"Undo the latest completion."`
	Streak    streaks.StreakCmd    `cmd:"" help:"Show a habit's streak."`
	Freeze    streaks.FreezeCmd    `cmd:"" help:"Spend a streak freeze on a missed day."`
	Calendar  streaks.CalendarCmd  `cmd:"" help:"Show recent days as a calendar."`
	Stats     streaks.StatsCmd     `cmd:"" help:"Show consistency statistics."`
	Celebrate streaks.CelebrateCmd `cmd:"" help:"Show and acknowledge new milestones."`
	Reconcile streaks.ReconcileCmd `cmd:"" help:"Recompute a habit's streak from its history."`

	Sweep  system.SweepCmd  `cmd:"" help:"Reconcile every habit and scan for suspicious activity once."`
	Daemon system.DaemonCmd `cmd:"" help:"Sweep periodically until interrupted."`
	Audit  system.AuditCmd  `cmd:"" help:"Show the audit log."`
	Flags  system.FlagsCmd  `cmd:"" help:"Show suspicious activity flags."`

	Backup  backups.BackupCmd `cmd:"" help:"Manage database backups."`
	Keyring system.KeyringCmd `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
	Debug   system.DebugCmd   `cmd:"" help:"Debug commands for troubleshooting."`
	Notify  system.NotifyCmd  `cmd:"" hidden:"" help:"Send a test notification to the tray app."`
}

// Commands that manage storage themselves.
var skipLoad = map[string]bool{"init": true, "keyring": true, "doctor": true}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit streak tracker with timezone-aware days, freezes and milestones"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":  constants.Version,
			"db_path":  constants.DefaultConfigPath,
			"conn_env": constants.ConnectionEnvVar,
		},
	)

	store, logDir, err := openStore()
	if err != nil {
		apperrors.Fatal(err)
	}
	if err := logger.Init(logger.Config{Debug: CLI.Verbose, ConfigDir: logDir}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	policy, err := config.Load(CLI.Policy)
	if err != nil {
		apperrors.Fatal(err)
	}

	actor, err := resolveUser()
	if err != nil {
		apperrors.Fatal(err)
	}

	m := metrics.New()
	streakCache, closeCache := openCache(policy)
	defer closeCache()

	eng := engine.New(store,
		engine.WithPolicy(policy),
		engine.WithCache(streakCache),
		engine.WithMetrics(m),
	)
	tray := notifier.New()
	eng.SetSink(notifier.NewAnnouncer(tray, eng))

	appCtx := &cli.Context{
		Store:    store,
		Engine:   eng,
		Policy:   policy,
		Metrics:  m,
		Notifier: tray,
		Actor:    actor,
	}

	command := strings.Fields(ctx.Command())[0]
	if !skipLoad[command] {
		if err := store.Load(); err != nil {
			apperrors.Fatal(err)
		}
	}
	defer store.Close()

	if err := ctx.Run(appCtx); err != nil {
		store.Close()
		closeCache()
		apperrors.Fatal(err)
	}
}

// openStore picks SQLite or PostgreSQL and returns the directory for logs.
func openStore() (storage.Provider, string, error) {
	if !CLI.Postgres {
		return sqlite.NewStore(CLI.DB), filepath.Dir(CLI.DB), nil
	}

	connStr, source, err := keyring.Resolve()
	if err != nil {
		return nil, "", fmt.Errorf("no PostgreSQL connection string: set %s or run '%s keyring set': %w",
			constants.ConnectionEnvVar, constants.AppName, err)
	}
	if source == keyring.SourceEnv {
		if _, err := postgres.ValidateConnString(connStr); err != nil {
			return nil, "", fmt.Errorf("%s: %w (use .pgpass or the OS keyring for passwords)", constants.ConnectionEnvVar, err)
		}
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, "", err
	}
	return postgres.New(connStr), filepath.Join(configDir, constants.AppName), nil
}

func resolveUser() (string, error) {
	if CLI.User != "" {
		return CLI.User, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("cannot determine the current user, pass --user: %w", err)
	}
	return u.Username, nil
}

// openCache connects to Redis when configured and falls back to an
// in-process cache when it is unreachable.
func openCache(policy config.Policy) (cache.Cache, func()) {
	if CLI.Redis == "" {
		return cache.NewMemory(policy.Cache.TTL), func() {}
	}
	cfg := cache.DefaultRedisConfig(CLI.Redis)
	cfg.TTL = policy.Cache.TTL
	r, err := cache.NewRedis(context.Background(), cfg)
	if err != nil {
		logger.Warn("Redis cache unavailable, using in-memory cache", "addr", CLI.Redis, "error", err)
		return cache.NewMemory(policy.Cache.TTL), func() {}
	}
	return r, func() {
		if err := r.Close(); err != nil {
			logger.Warn("Failed to close Redis cache", "error", err)
		}
	}
}
