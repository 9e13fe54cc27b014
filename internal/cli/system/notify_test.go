package system

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestNotifyCmd(t *testing.T) {
	ctx, _, out := setupTestDB(t)
	fake := &fakeNotifier{}
	ctx.Notifier = fake

	if err := (&NotifyCmd{Message: "hello"}).Run(ctx); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if len(fake.sent) != 1 || fake.sent[0] != "hello" {
		t.Errorf("sent = %v", fake.sent)
	}
	if !strings.Contains(out.String(), "Notification sent") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestNotifyCmd_DryRun(t *testing.T) {
	ctx, _, out := setupTestDB(t)
	fake := &fakeNotifier{}
	ctx.Notifier = fake

	if err := (&NotifyCmd{Message: "hello", DryRun: true}).Run(ctx); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if len(fake.sent) != 0 {
		t.Error("dry run should not send")
	}
	if !strings.Contains(out.String(), "[DryRun] hello") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestNotifyCmd_Failure(t *testing.T) {
	ctx, _, _ := setupTestDB(t)
	ctx.Notifier = &fakeNotifier{err: errors.New("tray is not running")}

	err := (&NotifyCmd{Message: "hello"}).Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "tray is not running") {
		t.Errorf("expected delivery error, got %v", err)
	}

	ctx.Notifier = nil
	if err := (&NotifyCmd{Message: "hello"}).Run(ctx); err == nil {
		t.Error("expected error without a notifier")
	}
}
