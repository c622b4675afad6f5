package mtproto

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-sync/internal/domain"
)

func TestClassifyFloodWaitFromMessage(t *testing.T) {
	err := classify("messages.getHistory", errors.New("rpc error: FLOOD_WAIT_15"))
	var rle *domain.RateLimitedError
	if !errors.As(err, &rle) || rle.WaitSeconds != 15 {
		t.Fatalf("expected RateLimitedError with 15s wait, got %v", err)
	}
}

func TestClassifyDeadlineExceededIsNetworkError(t *testing.T) {
	err := classify("messages.getHistory", context.DeadlineExceeded)
	if domain.KindOf(err) != domain.KindNetworkError {
		t.Fatalf("expected NETWORK_ERROR, got %v", domain.KindOf(err))
	}
}

func TestClassifyContextCanceledPassesThrough(t *testing.T) {
	err := classify("messages.getHistory", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled to pass through unclassified, got %v", err)
	}
}

func TestClassifyUnknownErrorIsTelegramError(t *testing.T) {
	err := classify("messages.sendMessage", errors.New("PEER_ID_INVALID"))
	if domain.KindOf(err) != domain.KindTelegramError {
		t.Fatalf("expected TELEGRAM_ERROR, got %v", domain.KindOf(err))
	}
}

func TestFakeClientStartRespectsConfiguredError(t *testing.T) {
	f := NewFakeClient()
	f.StartErr = domain.NewError(domain.KindAuthRequired, "no session")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.Start(ctx, true); domain.KindOf(err) != domain.KindAuthRequired {
		t.Fatalf("expected AUTH_REQUIRED, got %v", err)
	}
}
