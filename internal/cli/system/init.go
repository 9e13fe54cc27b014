package system

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/habitstreak/internal/cli"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/storage/sqlite"
)

type InitCmd struct {
	Force bool `help:"Delete the existing SQLite database before initialization. A backup is taken first."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		if err := c.reset(ctx); err != nil {
			return err
		}
	}

	if err := ctx.Store.Init(); err != nil {
		return err
	}
	ctx.Printf("Initialized habitstreak storage at: %s\n", ctx.Store.GetConfigPath())
	return nil
}

func (c *InitCmd) reset(ctx *cli.Context) error {
	const op = "cli.init"
	if _, ok := ctx.Store.(*sqlite.Store); !ok {
		return apperrors.New(apperrors.KindInvalidArgument, op, "--force only supports SQLite storage")
	}

	dbPath := ctx.Store.GetConfigPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to access existing database: %w", err)
	}

	if snapshot := ctx.PerformAutomaticBackup("init --force"); snapshot != "" {
		ctx.Printf("Backed up existing database to: %s\n", filepath.Base(snapshot))
	}
	// Close first to release the file lock.
	if err := ctx.Store.Close(); err != nil {
		return fmt.Errorf("failed to close existing database: %w", err)
	}
	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete existing database: %w", err)
		}
	}
	ctx.Printf("Deleted existing database at: %s\n", dbPath)
	return nil
}
