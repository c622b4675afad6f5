package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/infra/config"
	"telegram-sync/internal/mtproto"
	"telegram-sync/internal/ratelimit"
	"telegram-sync/internal/store"

	"github.com/gotd/td/tg"
)

func newTestSupervisor(t *testing.T, client *mtproto.FakeClient) (*Supervisor, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	limiter := ratelimit.New(s.RateWindows, s.Activity, clock.System{})
	cfg := config.FileConfig{
		ReconnectInitialDelay: time.Millisecond,
		ReconnectMaxDelay:     4 * time.Millisecond,
		ReconnectMaxAttempts:  3,
		ReconnectMultiplier:   2,
	}
	sup := New("acc1", client, s, limiter, clock.System{}, cfg)
	sup.healthProbeInterval = 5 * time.Millisecond
	return sup, s
}

func TestSupervisorConnectsAndMergesAccount(t *testing.T) {
	client := mtproto.NewFakeClient()
	client.Me = &tg.User{ID: 777, Username: "alice"}
	sup, s := newTestSupervisor(t, client)

	if err := s.Accounts.Upsert(domain.Account{ID: "acc1", Phone: "+15550000"}); err != nil {
		t.Fatal(err)
	}

	var connected mtproto.Client
	sup.OnConnected(func(c mtproto.Client) { connected = c })

	if err := sup.connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if connected == nil {
		t.Fatal("expected OnConnected hook to run")
	}

	acct, err := s.Accounts.GetByID("acc1")
	if err != nil {
		t.Fatal(err)
	}
	if acct == nil || acct.UserID != "777" || acct.Username != "alice" {
		t.Fatalf("expected account enriched with learned identity, got %+v", acct)
	}
	if acct.Phone != "+15550000" {
		t.Fatalf("expected existing phone preserved, got %q", acct.Phone)
	}
}

func TestSupervisorTerminatesAfterMaxReconnectAttempts(t *testing.T) {
	client := mtproto.NewFakeClient()
	client.StartErr = errors.New("network unreachable")
	sup, _ := newTestSupervisor(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := sup.Run(ctx)
	if err == nil {
		t.Fatal("expected terminal error after exhausting reconnect attempts")
	}
	if sup.State() != domain.StateTerminal {
		t.Fatalf("expected terminal state, got %s", sup.State())
	}
}

func TestSupervisorReconnectsOnHealthProbeFailure(t *testing.T) {
	client := mtproto.NewFakeClient()
	client.Me = &tg.User{ID: 1, Username: "bob"}
	client.MeErrs = []error{nil, errors.New("health probe failed")}
	sup, s := newTestSupervisor(t, client)
	if err := s.Accounts.Upsert(domain.Account{ID: "acc1"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sup.State() == domain.StateReconnecting || sup.State() == domain.StateError {
			cancel()
			<-done
			return
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	t.Fatal("expected supervisor to leave connected state after health probe failure")
}

func TestSupervisorNotEligibleWhenDisconnected(t *testing.T) {
	client := mtproto.NewFakeClient()
	sup, _ := newTestSupervisor(t, client)

	if sup.Eligible("messages.getHistory") {
		t.Fatal("expected ineligible before any successful connect")
	}
}
