package realtime

import (
	"fmt"
	"strconv"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/infra/logger"
	"telegram-sync/internal/mtproto"
	"telegram-sync/internal/store"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// Handlers wires a single account's mtproto.Client callbacks into cache
// store writes. One instance is constructed per supervised account; all
// methods are non-blocking and swallow their own errors after logging, per
// "errors are logged and swallowed so that one bad update never kills the
// updates loop".
type Handlers struct {
	accountID string
	store     *store.Store
	clock     clock.Clock
	touch     func(chatID string) // stamps the supervisor's lastActivity
}

func NewHandlers(accountID string, s *store.Store, c clock.Clock, touch func(chatID string)) *Handlers {
	return &Handlers{accountID: accountID, store: s, clock: c, touch: touch}
}

// Attach registers all three callbacks on client, so callers don't have to
// remember the wiring order.
func (h *Handlers) Attach(client mtproto.Client) {
	client.OnNewMessage(h.OnNewMessage)
	client.OnEditMessage(h.OnEditMessage)
	client.OnDeleteMessage(h.OnDeleteMessage)
}

func (h *Handlers) log() *zap.Logger {
	return logger.With(zap.String("account", h.accountID))
}

func (h *Handlers) OnNewMessage(e mtproto.NewMessageEvent) {
	msg, ok := e.Message.(*tg.Message)
	if !ok {
		return
	}
	chatID := PeerChatID(msg.PeerID)
	if chatID == "" {
		h.log().Debug("dropping new message with unresolved peer", zap.Int("msg_id", msg.ID))
		return
	}

	row := h.toRow(chatID, msg)
	nowMs := clock.NowMs(h.clock)
	row.FetchedAt = nowMs

	if err := h.store.Messages.Upsert(row); err != nil {
		h.log().Error("upsert new message failed", zap.Error(err), zap.String("chat_id", chatID))
		return
	}
	if err := h.store.Chats.UpdateLastMessage(chatID, row.MessageID, row.Date); err != nil {
		h.log().Error("update chat last message failed", zap.Error(err), zap.String("chat_id", chatID))
	}
	if h.touch != nil {
		h.touch(chatID)
	}
}

func (h *Handlers) OnEditMessage(e mtproto.EditMessageEvent) {
	msg, ok := e.Message.(*tg.Message)
	if !ok {
		return
	}
	chatID := PeerChatID(msg.PeerID)
	if chatID == "" {
		h.log().Debug("dropping edit with unresolved peer", zap.Int("msg_id", msg.ID))
		return
	}
	if err := h.store.Messages.MarkEdited(chatID, int64(msg.ID), msg.Message, int64(msg.EditDate)); err != nil {
		h.log().Error("mark edited failed", zap.Error(err), zap.String("chat_id", chatID))
		return
	}
	if h.touch != nil {
		h.touch(chatID)
	}
}

// OnDeleteMessage soft-deletes the referenced message ids. Per the spec's
// edge case, a chat-less delete (ChannelID==0, which MTProto sends for
// private/basic-group deletions on some clients) cannot be attributed to a
// chat_id and is dropped rather than guessed at.
func (h *Handlers) OnDeleteMessage(e mtproto.DeleteMessageEvent) {
	if e.ChannelID == 0 {
		h.log().Debug("dropping chat-less delete update", zap.Int("count", len(e.Messages)))
		return
	}
	chatID := fmt.Sprintf("-100%d", e.ChannelID)
	ids := make([]int64, len(e.Messages))
	for i, id := range e.Messages {
		ids[i] = int64(id)
	}
	if err := h.store.Messages.MarkDeleted(chatID, ids); err != nil {
		h.log().Error("mark deleted failed", zap.Error(err), zap.String("chat_id", chatID))
		return
	}
	if h.touch != nil {
		h.touch(chatID)
	}
}

func (h *Handlers) toRow(chatID string, msg *tg.Message) domain.Message {
	msgType, hasMedia := ResolveMessageType(msg)
	rawJSON, err := BuildRawJSON(msg, chatID)
	if err != nil {
		h.log().Warn("raw_json encode failed", zap.Error(err), zap.Int("msg_id", msg.ID))
	}
	return domain.Message{
		ChatID:        chatID,
		MessageID:     int64(msg.ID),
		FromID:        PeerChatID(msg.FromID),
		ReplyToID:     ReplyToID(msg),
		ForwardFromID: ForwardFromID(msg),
		Text:          msg.Message,
		Type:          msgType,
		HasMedia:      hasMedia,
		IsOutgoing:    msg.Out,
		IsPinned:      msg.Pinned,
		EditDate:      int64(msg.EditDate),
		IsEdited:      msg.EditDate != 0,
		Date:          int64(msg.Date),
		RawJSON:       rawJSON,
	}
}

// PeerChatID canonicalizes a tg.PeerClass into the engine's chat_id string
// space: user ids as-is, basic groups and channels/supergroups as their
// MTProto-native negative form (channel ids shifted by the -100<id> bot-API
// convention used throughout the cache schema's chat_id column).
func PeerChatID(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return strconv.FormatInt(p.UserID, 10)
	case *tg.PeerChat:
		return strconv.FormatInt(-p.ChatID, 10)
	case *tg.PeerChannel:
		return fmt.Sprintf("-100%d", p.ChannelID)
	default:
		return ""
	}
}
