// Package pidfile реализует единственную гарантию "один процесс на каталог
// данных": PID-файл создаётся при старте, проверяется на живость владельца и
// снимается при штатном завершении. Нет прямого аналога в коде учителя
// (интерактивный userbot запускается в единственном экземпляре вручную) —
// алгоритм взят буквально из компонента "Clock, IDs, process lock".
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/storage"
)

// Lock represents an acquired PID file. Release is idempotent.
type Lock struct {
	path string
}

// Acquire implements the algorithm of the clock/IDs/process-lock component:
// if the file exists and names a live process, acquisition fails with
// ALREADY_RUNNING; if it is absent or names a dead/malformed pid, it is
// (re)written with the current process id at mode 0o600.
func Acquire(path string) (*Lock, error) {
	if data, err := storage.ReadFile(path); err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pid, perr := strconv.Atoi(pidStr); perr == nil && pid > 0 {
			if processAlive(pid) {
				return nil, domain.NewError(domain.KindAlreadyRunning,
					fmt.Sprintf("daemon already running with pid %d", pid))
			}
		}
		// Stale or malformed: fall through and overwrite.
	} else if !os.IsNotExist(err) {
		return nil, domain.Wrap(domain.KindPIDIOError, "read pid file", err)
	}

	pid := os.Getpid()
	if err := storage.AtomicWriteFile(path, []byte(strconv.Itoa(pid))); err != nil {
		return nil, domain.Wrap(domain.KindPIDIOError, "write pid file", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the PID file unconditionally. Safe to call more than once
// and safe to call if the file was already removed out of band.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return domain.Wrap(domain.KindPIDIOError, "remove pid file", err)
	}
	return nil
}

// ReadPID reads and parses the pid recorded at path, for use by `daemon
// status`/`daemon stop`. Returns domain.KindDaemonNotRunning if the file is
// absent or the recorded process is dead.
func ReadPID(path string) (int, error) {
	data, err := storage.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, domain.NewError(domain.KindDaemonNotRunning, "pid file not found")
		}
		return 0, domain.Wrap(domain.KindPIDIOError, "read pid file", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, domain.NewError(domain.KindDaemonNotRunning, "pid file is malformed")
	}
	if !processAlive(pid) {
		return 0, domain.NewError(domain.KindDaemonNotRunning, "recorded process is not alive")
	}
	return pid, nil
}

// processAlive probes pid with a no-op signal, per the component's liveness
// probe algorithm.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
