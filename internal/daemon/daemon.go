// Package daemon is the composition root: it wires the store, scheduler,
// rate limiter and one supervisor per account together and drives the main
// loop of spec.md §4.9. Grounded on the teacher's internal/app.App (the
// Init/Run split) and internal/app/runner.go (ordered startup, signal-driven
// shutdown), generalized from one account's App to N accounts' supervisors
// sharing one scheduler and one cache store.
package daemon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/infra/config"
	"telegram-sync/internal/infra/lifecycle"
	"telegram-sync/internal/infra/logger"
	"telegram-sync/internal/infra/pidfile"
	"telegram-sync/internal/mtproto"
	"telegram-sync/internal/ratelimit"
	"telegram-sync/internal/realtime"
	"telegram-sync/internal/scheduler"
	"telegram-sync/internal/store"
	"telegram-sync/internal/supervisor"
	"telegram-sync/internal/syncjob"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	mainLoopInterval       = time.Second
	healthProbeEveryTicks  = 10
	cleanupEveryTicks      = 300
	initialConnectTimeout  = 30 * time.Second
	historyMethod          = "messages.getHistory"
)

// Paths bundles every on-disk location the daemon's composition root needs,
// per the persisted-state external interface.
type Paths struct {
	DataDB    string
	CacheDB   string
	SessionDB string
	PIDFile   string
}

// Daemon owns the whole running engine for one invocation of `daemon start`.
type Daemon struct {
	store     *store.Store
	sched     *scheduler.Scheduler
	limiter   *ratelimit.Limiter
	clock     clock.Clock
	cfg       config.FileConfig
	env       config.EnvConfig
	sessionDB *bolt.DB
	pidPath   string
	pidLock   *pidfile.Lock

	worker *syncjob.Worker
	lm     *lifecycle.Manager

	// newClient builds the MTProto façade for one account; overridden in
	// tests to avoid touching the real network.
	newClient func(acct domain.Account) mtproto.Client

	mu          sync.RWMutex
	supervisors map[string]*supervisor.Supervisor

	messagesSynced atomic.Int64
	startedAt      int64
}

// New opens the store, rate limiter and session storage and returns a Daemon
// ready for Run. It does not connect any account yet.
func New(paths Paths, env config.EnvConfig, cfg config.FileConfig) (*Daemon, error) {
	s, err := store.New(paths.DataDB, paths.CacheDB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sessionDB, err := mtproto.OpenSessionDB(paths.SessionDB)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open session db: %w", err)
	}

	c := clock.System{}
	limiter := ratelimit.New(s.RateWindows, s.Activity, c)

	d := &Daemon{
		store:       s,
		sched:       scheduler.New(s, c),
		limiter:     limiter,
		clock:       c,
		cfg:         cfg,
		env:         env,
		sessionDB:   sessionDB,
		pidPath:     paths.PIDFile,
		worker:      syncjob.New(s, c),
		supervisors: map[string]*supervisor.Supervisor{},
	}
	d.newClient = func(acct domain.Account) mtproto.Client {
		return mtproto.NewClient(acct.ID, mtproto.Config{
			APIID:   d.env.APIID,
			APIHash: d.env.APIHash,
			Phone:   acct.Phone,
			TestDC:  d.env.TestDC,
			Session: mtproto.NewBoltSessionStorage(d.sessionDB, acct.ID),
			Limiter: d.limiter,
		})
	}
	return d, nil
}

// Close releases the store and session database. Safe to call after Run
// returns, regardless of exit code.
func (d *Daemon) Close() {
	_ = d.sessionDB.Close()
	_ = d.store.Close()
}

// Run executes the full composition-root contract of spec.md §4.9 and
// returns the process exit code the caller (cmd/telegram-sync) should use.
// ctx should already carry SIGTERM/SIGINT cancellation, installed once by
// the caller before Run is invoked.
func (d *Daemon) Run(ctx context.Context) domain.ExitCode {
	accounts, err := d.store.Accounts.List()
	if err != nil {
		logger.Error("list accounts failed", zap.Error(err))
		return domain.ExitError
	}
	if len(accounts) == 0 {
		logger.Error("no accounts configured")
		return domain.ExitNoAccounts
	}

	lock, err := pidfile.Acquire(d.pidPath)
	if err != nil {
		if domain.KindOf(err) == domain.KindAlreadyRunning {
			logger.Error("daemon already running", zap.Error(err))
			return domain.ExitAlreadyRunning
		}
		logger.Error("acquire pid file failed", zap.Error(err))
		return domain.ExitError
	}
	d.pidLock = lock

	d.startedAt = clock.NowMs(d.clock)
	_ = d.store.Status.Write(domain.DaemonStatus{
		State:         "starting",
		StartedAt:     d.startedAt,
		TotalAccounts: len(accounts),
		LastUpdate:    d.startedAt,
	})

	d.lm = lifecycle.New(ctx)
	connected := d.connectAccounts(ctx, accounts)
	if connected == 0 {
		logger.Error("all accounts failed to connect")
		_ = d.writeStatus("stopped", len(accounts))
		d.pidLock.Release()
		return domain.ExitAllAccountsFailed
	}

	if err := d.sched.InitializeForStartup(); err != nil {
		logger.Error("scheduler startup initialization failed", zap.Error(err))
	}

	_ = d.writeStatus("running", len(accounts))
	d.mainLoop(ctx, len(accounts))

	if !d.shutdown(len(accounts)) {
		return domain.ExitError
	}
	return domain.ExitSuccess
}

// connectAccounts builds one gotdClient + supervisor per account, launches
// each supervisor's Run loop, and waits up to initialConnectTimeout for each
// to report its first successful connect. Returns the number that connected
// within the window, per spec.md §4.9's "abort iff zero connect" rule.
func (d *Daemon) connectAccounts(ctx context.Context, accounts []domain.Account) int {
	type pending struct {
		accountID string
		ready     chan struct{}
	}
	waits := make([]pending, 0, len(accounts))

	for _, acct := range accounts {
		acct := acct
		client := d.newClient(acct)

		sup := supervisor.New(acct.ID, client, d.store, d.limiter, d.clock, d.cfg)
		ready := make(chan struct{}, 1)
		sup.OnConnected(func(c mtproto.Client) {
			handlers := realtime.NewHandlers(acct.ID, d.store, d.clock, sup.Touch)
			handlers.Attach(c)
			select {
			case ready <- struct{}{}:
			default:
			}
		})

		d.mu.Lock()
		d.supervisors[acct.ID] = sup
		d.mu.Unlock()

		nodeName := "supervisor:" + acct.ID
		err := d.lm.Register(nodeName, "", nil,
			func(nodeCtx context.Context) (context.Context, error) {
				go func() {
					if err := sup.Run(nodeCtx); err != nil && ctx.Err() == nil {
						logger.Warn("supervisor exited", zap.String("account", acct.ID), zap.Error(err))
					}
				}()
				return nil, nil
			},
			func(stopCtx context.Context) error {
				return sup.Client().Close(stopCtx)
			})
		if err != nil {
			logger.Error("register supervisor node failed", zap.String("account", acct.ID), zap.Error(err))
			continue
		}

		waits = append(waits, pending{accountID: acct.ID, ready: ready})
	}

	if err := d.lm.StartAll(); err != nil {
		logger.Warn("lifecycle start reported errors", zap.Error(err))
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, initialConnectTimeout)
	defer cancelWait()

	connected := 0
	for _, w := range waits {
		select {
		case <-w.ready:
			connected++
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return connected
			}
			logger.Warn("account did not connect within startup window", zap.String("account", w.accountID))
		}
	}
	return connected
}

// mainLoop runs the 1s-tick contract of spec.md §4.9 until ctx is canceled
// (shutdownRequested in spec terms: ctx is the single shared cancellation
// flag SIGTERM/SIGINT sets, installed once by internal/cli's runDaemonStart
// via signal.NotifyContext before Run is called).
func (d *Daemon) mainLoop(ctx context.Context, totalAccounts int) {
	ticker := time.NewTicker(mainLoopInterval)
	defer ticker.Stop()

	var tick int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tick++

		d.dispatchOneJob(ctx)

		if tick%healthProbeEveryTicks == 0 {
			d.logSupervisorStates()
		}

		_ = d.writeStatus("running", totalAccounts)

		if tick%cleanupEveryTicks == 0 {
			if removed, err := d.sched.Cleanup(0); err != nil {
				logger.Warn("scheduler cleanup failed", zap.Error(err))
			} else if removed > 0 {
				logger.Info("scheduler cleanup removed stale jobs", zap.Int64("removed", removed))
			}
			if _, err := d.limiter.ClearExpiredFloodWaits(); err != nil {
				logger.Warn("clear expired flood waits failed", zap.Error(err))
			}
			if _, err := d.limiter.PruneOldWindows(time.Hour); err != nil {
				logger.Warn("prune rate windows failed", zap.Error(err))
			}
			if _, err := d.limiter.PruneOldActivity(7 * 24 * time.Hour); err != nil {
				logger.Warn("prune api activity failed", zap.Error(err))
			}
		}
	}
}

// dispatchOneJob implements step 2 of the main loop: pull the next pending
// job, find an eligible supervisor, and run it. Enforces the inter-job delay
// afterward so two dispatches never land closer together than configured.
func (d *Daemon) dispatchOneJob(ctx context.Context) {
	job, err := d.sched.GetNextJob()
	if err != nil {
		logger.Warn("get next job failed", zap.Error(err))
		return
	}
	if job == nil {
		return
	}

	sup := d.findEligibleSupervisor()
	if sup == nil {
		return
	}

	result, err := d.worker.Execute(ctx, sup.Client(), *job)
	if err != nil {
		logger.Warn("sync job failed", zap.String("job_id", job.ID), zap.String("chat_id", job.ChatID), zap.Error(err))
	} else if result.RateLimited {
		logger.Info("sync job rate limited, released to pending",
			zap.String("job_id", job.ID), zap.Int("wait_seconds", result.WaitSeconds))
	} else if result.Success {
		d.messagesSynced.Add(result.MessagesFetched)
		if result.HasMore {
			if _, err := d.sched.Enqueue(job.ChatID, job.JobType, job.Priority, job.CursorStart, job.CursorEnd); err != nil {
				logger.Warn("requeue follow-up job failed", zap.String("chat_id", job.ChatID), zap.Error(err))
			}
		}
	}

	if d.cfg.InterJobDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(d.cfg.InterJobDelay):
		}
	}
}

// findEligibleSupervisor returns a connected supervisor not currently
// flood-blocked on messages.getHistory, iterating accounts in a stable order
// so behavior is reproducible across identical runs.
func (d *Daemon) findEligibleSupervisor() *supervisor.Supervisor {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.supervisors))
	for id := range d.supervisors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sup := d.supervisors[id]
		if sup.Eligible(historyMethod) {
			return sup
		}
	}
	return nil
}

func (d *Daemon) logSupervisorStates() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for id, sup := range d.supervisors {
		if sup.State() != domain.StateConnected {
			logger.Debug("supervisor not connected", zap.String("account", id), zap.String("state", string(sup.State())))
		}
	}
}

func (d *Daemon) writeStatus(state string, totalAccounts int) error {
	d.mu.RLock()
	connected := 0
	for _, sup := range d.supervisors {
		if sup.State() == domain.StateConnected {
			connected++
		}
	}
	d.mu.RUnlock()

	status, err := d.sched.GetStatus()
	if err != nil {
		return err
	}

	return d.store.Status.Write(domain.DaemonStatus{
		State:             state,
		StartedAt:         d.startedAt,
		ConnectedAccounts: connected,
		TotalAccounts:     totalAccounts,
		MessagesSynced:    d.messagesSynced.Load(),
		PendingJobs:       status.PendingJobs,
		RunningJobs:       status.RunningJobs,
		LastUpdate:        clock.NowMs(d.clock),
	})
}

// shutdown runs the cleanup sequence of spec.md §4.9, racing it against
// cfg.ShutdownTimeout. Reports whether cleanup finished before the timeout;
// the caller exits nonzero when it did not.
func (d *Daemon) shutdown(totalAccounts int) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.sched = nil // (a) scheduler pointer cleared

		if d.lm != nil {
			if err := d.lm.Shutdown(); err != nil {
				logger.Warn("lifecycle shutdown reported errors", zap.Error(err))
			}
		}

		_ = d.store.Status.Write(domain.DaemonStatus{ // (c) state=stopped
			State:      "stopped",
			StartedAt:  d.startedAt,
			LastUpdate: clock.NowMs(d.clock),
		})
		d.pidLock.Release() // (d) release pid file
	}()

	select {
	case <-done:
		return true
	case <-time.After(d.cfg.ShutdownTimeout):
		logger.Error("shutdown timed out, forcing exit")
		d.pidLock.Release()
		return false
	}
}
