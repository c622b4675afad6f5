// Package ratelimit implements the rate-limiting coordinator: per-method
// sliding 60s call windows plus a flood-wait ledger, shared across every
// goroutine that calls into the MTProto adapter via the cache store, per the
// concurrency section's rate-limit coordination rule. The flood-wait
// classification shape (a WaitExtractor-style error inspector) is grounded
// on the teacher's internal/infra/throttle.Throttler, adapted from an
// in-process token bucket into a SQL-backed, cross-worker ledger.
package ratelimit

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/store"
)

const windowSize = 60 * time.Second

// Limiter wraps the cache store's rate_windows table with the policy
// described in the rate limiter component.
type Limiter struct {
	windows  *store.RateWindows
	activity *store.Activity
	clock    clock.Clock
}

func New(windows *store.RateWindows, activity *store.Activity, c clock.Clock) *Limiter {
	return &Limiter{windows: windows, activity: activity, clock: c}
}

func windowStart(t time.Time) int64 {
	return (t.Unix() / 60) * 60
}

// RecordCall increments the call counter for method's current window.
func (l *Limiter) RecordCall(method string) error {
	return l.windows.RecordCall(method, windowStart(l.clock.Now()))
}

// GetCallCount sums buckets where window_start >= now - 60*minutes. An empty
// method sums across all methods.
func (l *Limiter) GetCallCount(method string, minutes int) (int, error) {
	since := l.clock.Now().Add(-time.Duration(minutes) * time.Minute)
	return l.windows.CallCount(method, windowStart(since))
}

// SetFloodWait records a server-mandated cooldown for method.
func (l *Limiter) SetFloodWait(method string, seconds int) error {
	now := l.clock.Now()
	until := now.Add(time.Duration(seconds) * time.Second).UnixMilli()
	return l.windows.SetFloodWait(method, windowStart(now), until)
}

// GetFloodWait returns the latest unexpired flood-wait deadline for method,
// in unix ms, or 0 if none.
func (l *Limiter) GetFloodWait(method string) (int64, error) {
	return l.windows.LatestFloodWait(method, l.clock.Now().UnixMilli())
}

// IsBlocked reports whether method currently carries an unexpired
// flood-wait.
func (l *Limiter) IsBlocked(method string) (bool, error) {
	until, err := l.GetFloodWait(method)
	if err != nil {
		return false, err
	}
	return until > 0, nil
}

// GetWaitTime returns how much longer method remains blocked.
func (l *Limiter) GetWaitTime(method string) (time.Duration, error) {
	until, err := l.GetFloodWait(method)
	if err != nil || until == 0 {
		return 0, err
	}
	remaining := until - l.clock.Now().UnixMilli()
	if remaining <= 0 {
		return 0, nil
	}
	return time.Duration(remaining) * time.Millisecond, nil
}

func (l *Limiter) ClearExpiredFloodWaits() (int64, error) {
	return l.windows.ClearExpiredFloodWaits(l.clock.Now().UnixMilli())
}

func (l *Limiter) PruneOldWindows(age time.Duration) (int64, error) {
	return l.windows.PruneOldWindows(l.clock.Now().UnixMilli(), age.Milliseconds())
}

// PruneOldActivity implements pruneOldActivity(ageDays=7): it drops audit-log
// rows older than age, returning the number removed.
func (l *Limiter) PruneOldActivity(age time.Duration) (int64, error) {
	now := l.clock.Now().UnixMilli()
	return l.activity.Prune(now, age.Milliseconds())
}

// Status is the structured report getStatus() returns, consumed by
// `daemon status` and the daemon heartbeat.
type Status struct {
	TotalCallsLastMinute int
	PerMethod            map[string]int
	BlockedMethods       []string
}

func (l *Limiter) GetStatus() (Status, error) {
	since := windowStart(l.clock.Now().Add(-time.Minute))
	total, err := l.windows.CallCount("", since)
	if err != nil {
		return Status{}, err
	}
	perMethod, err := l.windows.PerMethodCounts(since)
	if err != nil {
		return Status{}, err
	}
	blocked, err := l.windows.BlockedMethods(l.clock.Now().UnixMilli())
	if err != nil {
		return Status{}, err
	}
	return Status{TotalCallsLastMinute: total, PerMethod: perMethod, BlockedMethods: blocked}, nil
}

// floodWaitRe matches the textual FLOOD_WAIT_<N> error form MTProto raises.
var floodWaitRe = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)

// ExtractFloodWait inspects err for a FLOOD_WAIT_<N> marker, either as a
// substring of its message or (when the adapter classified it already) as a
// *domain.RateLimitedError. Mirrors the teacher's WaitExtractor shape from
// internal/infra/throttle, generalized from Bot API's retry_after field to
// MTProto's error-message encoding.
func ExtractFloodWait(err error) (seconds int, ok bool) {
	if err == nil {
		return 0, false
	}
	var rle *domain.RateLimitedError
	if errors.As(err, &rle) {
		return rle.WaitSeconds, true
	}
	m := floodWaitRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, false
	}
	return n, true
}

// WrapCall records the call, invokes fn, observes its latency, and on a
// flood-wait error records the cooldown and returns a typed
// *domain.RateLimitedError instead of the raw error, per "record-before,
// observe-latency, on-error classify-and-record" in the MTProto adapter
// component. Every call, successful or not, is appended to the API activity
// audit log.
func (l *Limiter) WrapCall(method string, fn func() error) error {
	blocked, err := l.IsBlocked(method)
	if err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}
	if blocked {
		wait, _ := l.GetWaitTime(method)
		return &domain.RateLimitedError{Method: method, WaitSeconds: int(wait.Seconds())}
	}

	if err := l.RecordCall(method); err != nil {
		return fmt.Errorf("record call: %w", err)
	}

	start := l.clock.Now()
	callErr := fn()
	responseMs := l.clock.Now().Sub(start).Milliseconds()

	if callErr == nil {
		l.recordActivity(method, true, "", responseMs)
		return nil
	}
	if seconds, ok := ExtractFloodWait(callErr); ok {
		if err := l.SetFloodWait(method, seconds); err != nil {
			return fmt.Errorf("record flood wait: %w", err)
		}
		l.recordActivity(method, false, string(domain.KindRateLimited), responseMs)
		return &domain.RateLimitedError{Method: method, WaitSeconds: seconds}
	}
	l.recordActivity(method, false, string(domain.KindOf(callErr)), responseMs)
	return callErr
}

// recordActivity appends one row to the audit log. Write errors are swallowed.
func (l *Limiter) recordActivity(method string, success bool, errorCode string, responseMs int64) {
	if l.activity == nil {
		return
	}
	_ = l.activity.Record(l.clock.Now().UnixMilli(), method, success, errorCode, responseMs, "")
}
