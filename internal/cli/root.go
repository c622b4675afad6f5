// Package cli is the cobra command tree for the two contracts spec.md §1
// carves out of the "deliberately out of scope" command-line entry point:
// `daemon start|status|stop` (§6.2) and the read-only `sql` command (§9).
// Every other per-command handler the teacher's CLI ecosystem implies
// (accounts/contacts/chats/me/user/send/config/skill) is named only by the
// spec, not built here.
package cli

import (
	"path/filepath"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/config"
	"telegram-sync/internal/infra/logger"

	"github.com/spf13/cobra"
)

var (
	envPath    string
	configPath string

	exitCode = domain.ExitSuccess
)

var rootCmd = &cobra.Command{
	Use:   "telegram-sync",
	Short: "Multi-account Telegram sync engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "path to .env credentials file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to config.json")
	rootCmd.AddCommand(daemonCmd, sqlCmd)
}

// Execute runs the command tree and returns the process exit code a caller
// should pass to os.Exit. A subcommand sets exitCode before returning its
// error; an error from cobra itself (bad flags, unknown command) before any
// RunE runs falls back to ExitError.
func Execute() domain.ExitCode {
	if err := rootCmd.Execute(); err != nil {
		if exitCode == domain.ExitSuccess {
			exitCode = domain.ExitError
		}
	}
	return exitCode
}

func loadConfig() (config.EnvConfig, config.FileConfig, error) {
	if err := config.Load(envPath, configPath); err != nil {
		return config.EnvConfig{}, config.FileConfig{}, err
	}
	env := config.Env()
	logger.Init(env.LogLevel)
	for _, w := range config.Warnings() {
		logger.Warn(w)
	}
	return env, config.File(), nil
}

func dataPaths(env config.EnvConfig) (dataDB, cacheDB, sessionDB, pidFile string) {
	dir := env.DataDir
	return filepath.Join(dir, "data.db"),
		filepath.Join(dir, "cache.db"),
		filepath.Join(dir, "session.db"),
		filepath.Join(dir, "daemon.pid")
}
