package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"telegram-sync/internal/domain"
)

func TestAcquireDeadPidOverwritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	if err := os.WriteFile(path, []byte("999999999"), 0o600); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("expected success acquiring over dead pid, got %v", err)
	}
	defer lock.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		t.Fatalf("pid file not a valid integer: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected current pid %d, got %d", os.Getpid(), pid)
	}
}

func TestAcquireLivePidFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Acquire(path)
	if err == nil {
		t.Fatal("expected ALREADY_RUNNING error")
	}
	if domain.KindOf(err) != domain.KindAlreadyRunning {
		t.Fatalf("expected KindAlreadyRunning, got %v", domain.KindOf(err))
	}
}

func TestReleaseIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second release should be idempotent: %v", err)
	}
}

func TestReadPIDMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadPID(filepath.Join(dir, "missing.pid"))
	if domain.KindOf(err) != domain.KindDaemonNotRunning {
		t.Fatalf("expected KindDaemonNotRunning, got %v", domain.KindOf(err))
	}
}
