package syncjob

import (
	"strconv"
	"strings"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/store"

	"github.com/gotd/td/tg"
)

// resolvePeer turns a cached chat_id into an InputPeer, per the sync job
// contract's step 2: look the chat up in the cache first; if it's missing
// and the id is non-negative (a user id), fall back to a bare user peer with
// a zero access hash (gotd/td tolerates this for already-contacted users);
// if it's missing and negative (a group/channel id we've never cached), the
// job fails with PEER_UNRESOLVED since there is no way to guess an access
// hash for those.
func resolvePeer(s *store.Store, chatID string) (tg.InputPeerClass, error) {
	chat, err := s.Chats.GetByID(chatID)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		return peerFromChat(*chat)
	}

	id, convErr := strconv.ParseInt(chatID, 10, 64)
	if convErr != nil {
		return nil, domain.NewError(domain.KindInvalidArgs, "malformed chat_id "+chatID)
	}
	if id >= 0 {
		return &tg.InputPeerUser{UserID: id, AccessHash: 0}, nil
	}
	return nil, domain.NewError(domain.KindGeneralError, "PEER_UNRESOLVED: chat "+chatID+" not in cache")
}

func peerFromChat(c domain.Chat) (tg.InputPeerClass, error) {
	switch c.Type {
	case domain.ChatPrivate:
		id, err := strconv.ParseInt(c.ChatID, 10, 64)
		if err != nil {
			return nil, err
		}
		return &tg.InputPeerUser{UserID: id, AccessHash: c.AccessHash}, nil
	case domain.ChatGroup:
		id, err := strconv.ParseInt(c.ChatID, 10, 64)
		if err != nil {
			return nil, err
		}
		return &tg.InputPeerChat{ChatID: -id}, nil
	case domain.ChatSupergroup, domain.ChatChannel:
		raw := strings.TrimPrefix(c.ChatID, "-100")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return &tg.InputPeerChannel{ChannelID: id, AccessHash: c.AccessHash}, nil
	default:
		return nil, domain.NewError(domain.KindGeneralError, "PEER_UNRESOLVED: unknown chat type for "+c.ChatID)
	}
}
