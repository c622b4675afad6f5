package realtime

import (
	"path/filepath"
	"testing"
	"time"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/mtproto"
	"telegram-sync/internal/store"

	"github.com/gotd/td/tg"
)

func domainChatStub(chatID string) domain.Chat {
	return domain.Chat{ChatID: chatID, Type: domain.ChatPrivate, FetchedAt: 1}
}

func newTestHandlers(t *testing.T) (*Handlers, *store.Store, []string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	var touched []string
	h := NewHandlers("acc1", s, clock.NewFake(time.Unix(1_700_000_000, 0)), func(chatID string) {
		touched = append(touched, chatID)
	})
	return h, s, touched
}

func TestOnNewMessagePersistsAndStampsChat(t *testing.T) {
	h, s, _ := newTestHandlers(t)
	if err := s.Chats.Upsert(domainChatStub("555")); err != nil {
		t.Fatal(err)
	}
	msg := &tg.Message{
		ID:      7,
		PeerID:  &tg.PeerUser{UserID: 555},
		Message: "hi there",
		Date:    1000,
	}
	h.OnNewMessage(mtproto.NewMessageEvent{Message: msg})

	got, err := s.Messages.GetByID("555", 7)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != "hi there" {
		t.Fatalf("expected message persisted, got %+v", got)
	}

	chat, err := s.Chats.GetByID("555")
	if err != nil {
		t.Fatal(err)
	}
	if chat == nil || chat.LastMessageID != 7 {
		t.Fatalf("expected chat last_message_id stamped, got %+v", chat)
	}
}

func TestOnNewMessagePopulatesReplyForwardAndRawJSON(t *testing.T) {
	h, s, _ := newTestHandlers(t)
	if err := s.Chats.Upsert(domainChatStub("555")); err != nil {
		t.Fatal(err)
	}
	msg := &tg.Message{
		ID:      8,
		PeerID:  &tg.PeerUser{UserID: 555},
		Message: "reply",
		Date:    1000,
		ReplyTo: &tg.MessageReplyHeader{ReplyToMsgID: 7},
		FwdFrom: &tg.MessageFwdHeader{FromID: &tg.PeerUser{UserID: 999}},
	}
	h.OnNewMessage(mtproto.NewMessageEvent{Message: msg})

	got, err := s.Messages.GetByID("555", 8)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected message persisted")
	}
	if got.ReplyToID != 7 {
		t.Fatalf("expected reply_to_id 7, got %d", got.ReplyToID)
	}
	if got.ForwardFromID != "999" {
		t.Fatalf("expected forward_from_id 999, got %q", got.ForwardFromID)
	}
	if got.RawJSON == "" {
		t.Fatal("expected raw_json to be populated")
	}
}

func TestOnEditMessagePatchesText(t *testing.T) {
	h, s, _ := newTestHandlers(t)
	h.OnNewMessage(mtproto.NewMessageEvent{Message: &tg.Message{
		ID: 1, PeerID: &tg.PeerUser{UserID: 1}, Message: "v1", Date: 100,
	}})
	h.OnEditMessage(mtproto.EditMessageEvent{Message: &tg.Message{
		ID: 1, PeerID: &tg.PeerUser{UserID: 1}, Message: "v2", Date: 100, EditDate: 200,
	}})

	got, err := s.Messages.GetByID("1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "v2" || !got.IsEdited {
		t.Fatalf("expected edited text, got %+v", got)
	}
}

func TestOnDeleteMessageWithoutChannelIsDropped(t *testing.T) {
	h, s, _ := newTestHandlers(t)
	h.OnNewMessage(mtproto.NewMessageEvent{Message: &tg.Message{
		ID: 1, PeerID: &tg.PeerChannel{ChannelID: 42}, Message: "hi", Date: 100,
	}})
	h.OnDeleteMessage(mtproto.DeleteMessageEvent{ChannelID: 0, Messages: []int{1}})

	got, err := s.Messages.GetByID("-10042", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.IsDeleted {
		t.Fatalf("expected chat-less delete to be dropped, got %+v", got)
	}
}

func TestOnDeleteMessageWithChannelSoftDeletes(t *testing.T) {
	h, s, _ := newTestHandlers(t)
	h.OnNewMessage(mtproto.NewMessageEvent{Message: &tg.Message{
		ID: 1, PeerID: &tg.PeerChannel{ChannelID: 42}, Message: "hi", Date: 100,
	}})
	h.OnDeleteMessage(mtproto.DeleteMessageEvent{ChannelID: 42, Messages: []int{1}})

	got, err := s.Messages.GetByID("-10042", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.IsDeleted {
		t.Fatalf("expected message soft-deleted, got %+v", got)
	}
}
