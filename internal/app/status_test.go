package app

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/blackwell-systems/pkgretain/internal/command"
)

// TestRunStatus_DaemonStoppedSuggestsWatchDaemon verifies that when the
// daemon is not running, the status suggests starting it.
func TestRunStatus_DaemonStoppedSuggestsWatchDaemon(t *testing.T) {
	path := useTestJournal(t, "json")

	stdout, _, err := execute(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{
		path,
		"(json)",
		"not created yet",
		"Packages:  0",
		"Expiry:    owner exited",
		"watch --daemon",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestRunStatus_CountsJournal(t *testing.T) {
	useTestJournal(t, "sqlite")
	seedJournal(t)

	stdout, _, err := execute(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{
		"(sqlite)",
		"Packages:  2 (1 locked, 1 evictable)",
		"Locks:     1",
		"Uses:      2",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestRunStatus_DaemonRunning(t *testing.T) {
	useTestJournal(t, "json")

	// The default PID file lives under HOME, which useTestJournal redirected.
	pidFile, err := getDefaultPIDFile()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(stdout, "running (PID "+strconv.Itoa(os.Getpid())+")") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestRunStatus_ReportsAgePolicy(t *testing.T) {
	useTestJournal(t, "json")
	configPath = writeConfig(t, "retention:\n  maxLockAge: 2h\n  checkLiveness: true\n")

	stdout, _, err := execute(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(stdout, "owner exited, or older than 2h0m0s") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestDoctor_WarnsWhenDaemonStopped(t *testing.T) {
	useTestJournal(t, "json")

	stdout, _, err := execute(t, "doctor")

	var exitErr *command.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("doctor error = %v, want exit status 2", err)
	}
	for _, want := range []string{
		"✓ Using default config",
		"✓ Journal readable",
		"✓ Journal lock acquirable",
		"✓ No stale locks",
		"⚠ Daemon not running",
		"Found 1 warning(s)",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestDoctor_ReportsStaleLocks(t *testing.T) {
	useTestJournal(t, "sqlite")

	if _, _, err := execute(t, "register", "Acme.Web", "1.0.0", "ServerTasks-1", "--owner-pid", strconv.Itoa(deadPID(t))); err != nil {
		t.Fatalf("register error = %v", err)
	}

	stdout, _, err := execute(t, "doctor")

	var exitErr *command.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("doctor error = %v, want exit status 2", err)
	}
	if !strings.Contains(stdout, "1 stale lock(s) waiting to be released") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestDoctor_CorruptJournalIsCritical(t *testing.T) {
	path := useTestJournal(t, "json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "doctor")
	if err == nil || err.Error() != "diagnostics failed" {
		t.Fatalf("doctor error = %v, want diagnostics failed", err)
	}
	if !strings.Contains(stdout, "✗ Cannot read journal") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestDoctor_InvalidConfig(t *testing.T) {
	useTestJournal(t, "json")
	configPath = writeConfig(t, "journal:\n  lockTimeout: -1s\n")

	stdout, _, err := execute(t, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail on an invalid config")
	}
	if !strings.Contains(stdout, "✗ Config invalid") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}
