package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/store"
)

// captureStdout temporarily swaps os.Stdout for a pipe and returns everything
// fn writes to it. runDaemonStatus reads os.Stdout at call time (unlike
// internal/infra/pr, which caches it at init), so this works for it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	w.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

// TestRunDaemonStatusReportsStoppedWithNoPIDFile is the one test in this
// package that exercises loadConfig: internal/infra/config.Load is a
// process-global singleton that refuses a second call, so only one RunE path
// in the whole internal/cli test binary may go through it.
func TestRunDaemonStatusReportsStoppedWithNoPIDFile(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("API_ID", "12345")
	t.Setenv("API_HASH", "deadbeef")
	t.Setenv("PHONE_NUMBER", "+10000000000")
	t.Setenv("TELEGRAM_SYNC_CLI_DATA_DIR", dir)

	envPath = filepath.Join(dir, "nonexistent.env")
	configPath = filepath.Join(dir, "nonexistent.json")

	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Status.Write(domain.DaemonStatus{
		State:             "running",
		ConnectedAccounts: 2,
		TotalAccounts:     3,
	}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	out := captureStdout(t, func() {
		if err := runDaemonStatus(nil, nil); err != nil {
			t.Fatalf("runDaemonStatus returned error: %v", err)
		}
	})

	var got statusOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("expected valid JSON, got %q: %v", out, err)
	}
	if got.Status != "stopped" {
		t.Fatalf("expected status %q with no pid file present, got %q", "stopped", got.Status)
	}
	if got.PID != 0 {
		t.Fatalf("expected no pid in output, got %d", got.PID)
	}
	if got.ConnectedAccounts != 2 || got.TotalAccounts != 3 {
		t.Fatalf("expected heartbeat counts to survive a stopped daemon, got %+v", got)
	}
}
