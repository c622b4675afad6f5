package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"telegram-sync/internal/daemon"
	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/logger"
	"telegram-sync/internal/infra/pidfile"
	"telegram-sync/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	logMaxSizeMB  = 50
	logMaxBackups = 5
	logMaxAgeDays = 30
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run or inspect the sync daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the engine; exits only on shutdown",
	RunE:  runDaemonStart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running daemon to shut down",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd, daemonStatusCmd, daemonStopCmd)
}

// runDaemonStart wires and runs the composition root, following the
// teacher's cmd/userbot/main.go pattern: load config, install a
// signal-cancelable context, run until shutdown, map the result to a
// process exit code.
func runDaemonStart(cmd *cobra.Command, args []string) error {
	env, fileCfg, err := loadConfig()
	if err != nil {
		exitCode = domain.ExitError
		return err
	}

	logger.SetRotatingFile(filepath.Join(env.DataDir, "daemon.log"), logMaxSizeMB, logMaxBackups, logMaxAgeDays, false)

	dataDB, cacheDB, sessionDB, pidFile := dataPaths(env)
	d, err := daemon.New(daemon.Paths{
		DataDB:    dataDB,
		CacheDB:   cacheDB,
		SessionDB: sessionDB,
		PIDFile:   pidFile,
	}, env, fileCfg)
	if err != nil {
		exitCode = domain.ExitError
		return fmt.Errorf("init daemon: %w", err)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode = d.Run(ctx)
	if exitCode != domain.ExitSuccess {
		return fmt.Errorf("daemon exited with code %d", exitCode)
	}
	return nil
}

type statusOutput struct {
	Status            string `json:"status"`
	PID               int    `json:"pid,omitempty"`
	ConnectedAccounts int    `json:"connected_accounts"`
	TotalAccounts     int    `json:"total_accounts"`
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	env, _, err := loadConfig()
	if err != nil {
		exitCode = domain.ExitError
		return err
	}

	dataDB, cacheDB, _, pidFile := dataPaths(env)
	out := statusOutput{Status: "stopped"}

	if pid, err := pidfile.ReadPID(pidFile); err == nil {
		out.Status = "running"
		out.PID = pid
	} else if domain.KindOf(err) != domain.KindDaemonNotRunning {
		exitCode = domain.ExitError
		return err
	}

	s, err := store.New(dataDB, cacheDB)
	if err != nil {
		exitCode = domain.ExitError
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	ds := s.Status.Read()
	out.ConnectedAccounts = ds.ConnectedAccounts
	out.TotalAccounts = ds.TotalAccounts

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	env, _, err := loadConfig()
	if err != nil {
		exitCode = domain.ExitError
		return err
	}

	_, _, _, pidFile := dataPaths(env)
	pid, err := pidfile.ReadPID(pidFile)
	if err != nil {
		exitCode = domain.ExitError
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		exitCode = domain.ExitError
		return domain.Wrap(domain.KindDaemonNotRunning, "find process", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		exitCode = domain.ExitError
		return domain.Wrap(domain.KindDaemonNotRunning, "signal process", err)
	}

	logger.Info("sent shutdown signal", zap.Int("pid", pid))
	return nil
}
