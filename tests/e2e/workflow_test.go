package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// cliPath locates the built binary: HABITSTREAK_BIN_DIR, else ../../bin.
func cliPath(t *testing.T) string {
	t.Helper()
	binDir := os.Getenv("HABITSTREAK_BIN_DIR")
	if binDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			t.Fatalf("Failed to get cwd: %v", err)
		}
		binDir = filepath.Join(cwd, "..", "..", "bin")
	}
	binDir, _ = filepath.Abs(binDir)

	path := filepath.Join(binDir, "habitstreak")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skipf("CLI binary not found at %s. Build it with 'go build -o bin/habitstreak ./cmd/habitstreak'.", path)
	}
	return path
}

// isolatedEnv points HOME and XDG dirs at tempDir so logs, backups and the
// tray lookup never touch the real user profile.
func isolatedEnv(tempDir string) []string {
	var env []string
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "HOME=") || strings.HasPrefix(e, "XDG_") || strings.HasPrefix(e, "HABITSTREAK_") {
			continue
		}
		env = append(env, e)
	}
	return append(env,
		fmt.Sprintf("HOME=%s", tempDir),
		fmt.Sprintf("XDG_CONFIG_HOME=%s", tempDir),
		"HABITSTREAK_USER=e2e",
	)
}

func TestEndToEndWorkflow(t *testing.T) {
	path := cliPath(t)
	tempDir := t.TempDir()
	env := isolatedEnv(tempDir)
	db := filepath.Join(tempDir, "habitstreak", "habitstreak.db")
	run := func(args ...string) string {
		return runCmd(t, path, env, append([]string{"--db", db}, args...)...)
	}

	run("init")
	run("habit", "add", "read", "--tz", "UTC")

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	run("done", "read", "--at", yesterday+" 09:00")
	out := run("done", "read", "--difficulty", "hard")
	if !strings.Contains(out, "Streak: 2 day(s)") {
		t.Errorf("expected a two-day streak, got:\n%s", out)
	}

	out = run("streak", "read")
	if !strings.Contains(out, "Current: 2 day(s) since "+yesterday) {
		t.Errorf("unexpected streak output:\n%s", out)
	}

	// A second completion on the same day is rejected and audited.
	if _, err := runCmdErr(path, env, "--db", db, "done", "read"); err == nil {
		t.Error("duplicate completion should fail")
	}
	out = run("audit", "--action", "mutation_rejected", "--json")
	var entries []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("audit output is not JSON: %v\n%s", err, out)
	}
	if len(entries) != 1 {
		t.Errorf("expected one rejection in the audit log, got %d", len(entries))
	}

	out = run("sweep", "--json", "--textfile", filepath.Join(tempDir, "habitstreak.prom"))
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("sweep output is not JSON: %v\n%s", err, out)
	}
	if report["habits"] != float64(1) {
		t.Errorf("sweep should cover one habit, got %v", report["habits"])
	}
	if _, err := os.Stat(filepath.Join(tempDir, "habitstreak.prom")); err != nil {
		t.Errorf("metrics textfile not written: %v", err)
	}

	run("backup", "create")
	out = run("backup", "list")
	if !strings.Contains(out, "Available backups (1 total") {
		t.Errorf("unexpected backup list:\n%s", out)
	}

	run("calendar", "read", "--days", "7")
	run("doctor")
}

func runCmd(t *testing.T, path string, env []string, args ...string) string {
	t.Helper()
	out, err := runCmdErr(path, env, args...)
	if err != nil {
		t.Fatalf("Command %s %v failed: %v\nOutput: %s", path, args, err, out)
	}
	return out
}

func runCmdErr(path string, env []string, args ...string) (string, error) {
	cmd := exec.Command(path, args...)
	cmd.Env = env
	out, err := cmd.Output()
	return string(out), err
}
