package cli

import (
	"path/filepath"
	"testing"

	"telegram-sync/internal/infra/config"
)

func TestDataPaths(t *testing.T) {
	env := config.EnvConfig{DataDir: "/var/lib/telegram-sync"}
	dataDB, cacheDB, sessionDB, pidFile := dataPaths(env)

	wantBase := map[string]string{
		dataDB:    "data.db",
		cacheDB:   "cache.db",
		sessionDB: "session.db",
		pidFile:   "daemon.pid",
	}
	for got, wantName := range wantBase {
		if filepath.Base(got) != wantName {
			t.Fatalf("expected base name %q, got %q", wantName, got)
		}
		if filepath.Dir(got) != env.DataDir {
			t.Fatalf("expected dir %q, got %q", env.DataDir, filepath.Dir(got))
		}
	}
}
