package system

import (
	"fmt"
	"path/filepath"

	"github.com/julianstephens/habitstreak/internal/cli"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	if snapshot := ctx.PerformAutomaticBackup("migrate"); snapshot != "" {
		ctx.Printf("Backup taken before migrating: %s\n", filepath.Base(snapshot))
	}

	count, err := ctx.Store.Migrate(func(msg string) {
		ctx.Println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		ctx.Println("No migrations to apply. Database is up to date.")
	} else {
		ctx.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
