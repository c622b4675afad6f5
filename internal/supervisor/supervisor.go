// Package supervisor drives one account's MTProto connection through the
// connecting/connected/error/reconnecting/terminal state machine of spec.md
// §4.8. Grounded on the teacher's internal/infra/telegram/connection
// manager, generalized from one process-wide singleton to one instance per
// supervised account, and on internal/app/runner.go's "launch background
// work, select on shutdown" shape.
package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/infra/config"
	"telegram-sync/internal/infra/logger"
	"telegram-sync/internal/mtproto"
	"telegram-sync/internal/ratelimit"
	"telegram-sync/internal/store"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const defaultHealthProbeInterval = 10 * time.Second

// Supervisor owns one account's MTProto client across its whole lifetime:
// connect, run the update loop, probe health, and reconnect with backoff on
// failure, up to a bounded number of attempts.
type Supervisor struct {
	accountID string
	client    mtproto.Client
	store     *store.Store
	clock     clock.Clock
	cfg       config.FileConfig
	limiter   *ratelimit.Limiter

	// onConnected runs once per successful connect, after GetMe but before
	// the updates loop starts, so the daemon can attach realtime handlers to
	// a client instance this package never needs to import internal/realtime
	// to know about.
	onConnected func(mtproto.Client)

	healthProbeInterval time.Duration

	mu                sync.RWMutex
	state             domain.SupervisorState
	reconnectAttempts int
	nextReconnectAt   time.Time
	lastActivity      time.Time
}

func New(accountID string, client mtproto.Client, s *store.Store, limiter *ratelimit.Limiter, c clock.Clock, cfg config.FileConfig) *Supervisor {
	return &Supervisor{
		accountID:           accountID,
		client:              client,
		store:               s,
		limiter:             limiter,
		clock:               c,
		cfg:                 cfg,
		state:               domain.StateConnecting,
		healthProbeInterval: defaultHealthProbeInterval,
	}
}

// OnConnected registers a hook invoked once per successful connect, before
// the update loop starts. Used by the daemon to attach internal/realtime
// handlers without this package depending on that one.
func (s *Supervisor) OnConnected(fn func(mtproto.Client)) { s.onConnected = fn }

func (s *Supervisor) AccountID() string        { return s.accountID }
func (s *Supervisor) Client() mtproto.Client   { return s.client }
func (s *Supervisor) State() domain.SupervisorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Touch stamps lastActivity, standing in for the component design's
// "supervisor tracks lastActivity for idle bookkeeping"; chatID is accepted
// so it can be wired directly as internal/realtime's touch callback, but the
// account-wide timestamp doesn't distinguish which chat triggered it.
func (s *Supervisor) Touch(chatID string) {
	s.mu.Lock()
	s.lastActivity = s.clock.Now()
	s.mu.Unlock()
}

// Eligible reports whether this supervisor is a valid dispatch target for a
// sync job: connected, and the given rate-limited method isn't currently
// flood-blocked.
func (s *Supervisor) Eligible(method string) bool {
	if s.State() != domain.StateConnected {
		return false
	}
	blocked, err := s.limiter.IsBlocked(method)
	if err != nil {
		logger.Logger().Warn("rate limiter eligibility check failed", zap.Error(err), zap.String("account", s.accountID))
		return false
	}
	return !blocked
}

func (s *Supervisor) setState(st domain.SupervisorState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the full state machine until ctx is canceled or the supervisor
// gives up after exceeding maxAttempts, per spec.md §4.8's transition table.
// It never returns nil: on ctx cancellation it returns ctx.Err(), and a
// terminal give-up returns a domain error the daemon logs and counts toward
// AllAccountsFailed if every supervisor meets the same fate.
func (s *Supervisor) Run(ctx context.Context) error {
	bo := s.newBackoff()
	log := logger.With(zap.String("account", s.accountID))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(domain.StateConnecting)
		connCtx, cancelConn := context.WithCancel(ctx)

		err := s.connect(connCtx)
		if err == nil {
			s.setState(domain.StateConnected)
			s.mu.Lock()
			s.reconnectAttempts = 0
			s.mu.Unlock()
			bo.Reset()
			log.Info("account connected")

			err = s.runUntilError(connCtx)
		}
		cancelConn()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(domain.StateError)
		log.Warn("account connection lost", zap.Error(err))

		s.mu.Lock()
		s.reconnectAttempts++
		attempts := s.reconnectAttempts
		s.mu.Unlock()

		if attempts > s.cfg.ReconnectMaxAttempts {
			s.setState(domain.StateTerminal)
			log.Error("giving up reconnecting", zap.Int("attempts", attempts))
			return domain.NewError(domain.KindNetworkError, fmt.Sprintf("account %s exceeded max reconnect attempts", s.accountID))
		}

		delay := bo.NextBackOff()
		s.mu.Lock()
		s.nextReconnectAt = s.clock.Now().Add(delay)
		s.mu.Unlock()
		s.setState(domain.StateReconnecting)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// newBackoff builds the exponential schedule from config, per spec.md
// §4.8's defaults (1s initial, x2 multiplier, 60s cap). MaxElapsedTime is
// disabled since attempt counting is the supervisor's own responsibility,
// not something backoff.ExponentialBackOff natively tracks.
func (s *Supervisor) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectInitialDelay
	bo.MaxInterval = s.cfg.ReconnectMaxDelay
	bo.Multiplier = s.cfg.ReconnectMultiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	return bo
}

// connect runs client.Start, resolves self and merges duplicate accounts,
// per spec.md §4.8's connecting→connected transition and §4.8's "during
// connect, if getMe().id equals another account's user_id, merge" rule.
func (s *Supervisor) connect(ctx context.Context) error {
	if err := s.client.Start(ctx, true); err != nil {
		return err
	}
	self, err := s.client.GetMe(ctx)
	if err != nil {
		return err
	}

	acct, err := s.store.Accounts.GetByID(s.accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = &domain.Account{ID: s.accountID}
	}
	acct.UserID = strconv.FormatInt(self.ID, 10)
	acct.Username = self.Username

	merged, err := s.store.Accounts.MergeDuplicates(*acct)
	if err != nil {
		return err
	}
	if merged.ID != s.accountID {
		logger.Logger().Info("account merged into existing row",
			zap.String("account", s.accountID), zap.String("merged_into", merged.ID))
	}

	if s.onConnected != nil {
		s.onConnected(s.client)
	}
	return nil
}

// runUntilError runs the update loop and a periodic health probe
// concurrently, returning as soon as either one fails or ctx is canceled.
func (s *Supervisor) runUntilError(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- s.client.StartUpdatesLoop(ctx)
	}()
	go func() {
		errCh <- s.healthProbeLoop(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// healthProbeLoop calls GetMe every 10s; any failure flips the supervisor to
// error, per spec.md §4.8's "connected → error: periodic health probe...
// any exception flips to error" transition.
func (s *Supervisor) healthProbeLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.healthProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.client.GetMe(ctx); err != nil {
				return err
			}
		}
	}
}
