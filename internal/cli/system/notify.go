package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/constants"
)

type NotifyCmd struct {
	Message string `arg:"" optional:"" help:"Text to send." default:"habitstreak test notification"`
	DryRun  bool   `help:"Print the notification instead of sending it."`
}

// Run sends one notification through the tray, to check the setup.
func (c *NotifyCmd) Run(ctx *cli.Context) error {
	if c.DryRun {
		ctx.Println("[DryRun] " + c.Message)
		return nil
	}
	if ctx.Notifier == nil {
		return fmt.Errorf("notifications are not configured")
	}

	rctx, cancel := context.WithTimeout(context.Background(), constants.NotifyRequestTimeout*constants.NotifyMaxRetries)
	defer cancel()
	if err := ctx.Notifier.Notify(rctx, c.Message); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	ctx.Println("✓ Notification sent")
	return nil
}
