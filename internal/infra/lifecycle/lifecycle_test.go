package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestStartStopOrder(t *testing.T) {
	m := New(context.Background())
	var order []string

	mustRegister := func(name, parent string, deps []string) {
		t.Helper()
		err := m.Register(name, parent, deps,
			func(ctx context.Context) (context.Context, error) {
				order = append(order, "start:"+name)
				return nil, nil
			},
			func(ctx context.Context) error {
				order = append(order, "stop:"+name)
				return nil
			})
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	mustRegister("store", "", nil)
	mustRegister("scheduler", "", []string{"store"})
	mustRegister("supervisor-a", "", []string{"store"})

	if err := m.StartAll(); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	storeIdx, schedIdx := -1, -1
	for i, e := range order {
		if e == "start:store" {
			storeIdx = i
		}
		if e == "start:scheduler" {
			schedIdx = i
		}
	}
	if storeIdx < 0 || schedIdx < 0 || storeIdx > schedIdx {
		t.Fatalf("expected store to start before scheduler, got order %v", order)
	}

	order = nil
	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if order[len(order)-1] != "stop:store" {
		t.Fatalf("expected store to stop last, got order %v", order)
	}
}

func TestCycleDetection(t *testing.T) {
	m := New(context.Background())
	_ = m.Register("a", "", []string{"b"}, noopStart, noopStop)
	_ = m.Register("b", "", []string{"a"}, noopStart, noopStop)

	if err := m.StartAll(); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestStopTimeout(t *testing.T) {
	m := New(context.Background())
	err := m.RegisterWithStopTimeout("slow", "", nil, noopStart, func(ctx context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	}, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.StartAll(); err != nil {
		t.Fatal(err)
	}
	if err := m.Shutdown(); err == nil {
		t.Fatal("expected timeout error from Shutdown")
	}
}

func noopStart(ctx context.Context) (context.Context, error) { return nil, nil }
func noopStop(ctx context.Context) error                     { return nil }
