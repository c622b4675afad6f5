package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	f := NewFake(time.Unix(1000, 0))
	if f.Now().Unix() != 1000 {
		t.Fatalf("expected 1000, got %d", f.Now().Unix())
	}
	f.Advance(5 * time.Second)
	if f.Now().Unix() != 1005 {
		t.Fatalf("expected 1005, got %d", f.Now().Unix())
	}
}

func TestNonce63NonNegative(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := Nonce63()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n < 0 {
			t.Fatalf("expected non-negative nonce, got %d", n)
		}
	}
}
