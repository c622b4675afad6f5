package realtime

import (
	"testing"

	"telegram-sync/internal/domain"

	"github.com/gotd/td/tg"
)

func TestResolveMessageTypeService(t *testing.T) {
	typ, hasMedia := ResolveMessageType(&tg.MessageService{})
	if typ != domain.MsgService || hasMedia {
		t.Fatalf("expected service/no-media, got %v/%v", typ, hasMedia)
	}
}

func TestResolveMessageTypeText(t *testing.T) {
	typ, hasMedia := ResolveMessageType(&tg.Message{Message: "hello"})
	if typ != domain.MsgText || hasMedia {
		t.Fatalf("expected text/no-media, got %v/%v", typ, hasMedia)
	}
}

func TestResolveMessageTypePhoto(t *testing.T) {
	typ, hasMedia := ResolveMessageType(&tg.Message{Media: &tg.MessageMediaPhoto{}})
	if typ != domain.MsgPhoto || !hasMedia {
		t.Fatalf("expected photo/media, got %v/%v", typ, hasMedia)
	}
}

func TestResolveMessageTypeUnknownMediaFallsBackToMedia(t *testing.T) {
	typ, hasMedia := ResolveMessageType(&tg.Message{Media: &tg.MessageMediaUnsupported{}})
	if typ != domain.MsgMedia || !hasMedia {
		t.Fatalf("expected media/media, got %v/%v", typ, hasMedia)
	}
}

func TestResolveMessageTypeUnknownShape(t *testing.T) {
	typ, hasMedia := ResolveMessageType(&tg.MessageEmpty{})
	if typ != domain.MsgUnknown || hasMedia {
		t.Fatalf("expected unknown/no-media, got %v/%v", typ, hasMedia)
	}
}
