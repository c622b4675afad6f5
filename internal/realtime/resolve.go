// Package realtime turns live MTProto updates from internal/mtproto into
// cache-store writes: message upserts, chat last-message stamps, edit
// patches and soft deletes. Grounded on the teacher's internal/domain/
// updates.Handlers dispatch registration pattern (dispatch.OnNewMessage,
// entity resolution via tg.Entities), rewritten to persist into the cache
// store instead of filtering and queuing notifications.
package realtime

import (
	"telegram-sync/internal/domain"

	"github.com/gotd/td/tg"
)

// ResolveMessageType implements the fixed message-shape table: service
// messages first, then a text/media split, then the media-union mapping,
// falling back to "media" for an unrecognized media variant and "unknown"
// for a top-level shape this engine has never seen.
func ResolveMessageType(m tg.MessageClass) (domain.MessageType, bool) {
	switch msg := m.(type) {
	case *tg.MessageService:
		return domain.MsgService, false
	case *tg.Message:
		return resolveMediaType(msg.Media), msg.Media != nil
	default:
		return domain.MsgUnknown, false
	}
}

func resolveMediaType(media tg.MessageMediaClass) domain.MessageType {
	if media == nil {
		return domain.MsgText
	}
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		return domain.MsgPhoto
	case *tg.MessageMediaDocument:
		return resolveDocumentType(m)
	case *tg.MessageMediaContact:
		return domain.MsgContact
	case *tg.MessageMediaGeo, *tg.MessageMediaGeoLive:
		return domain.MsgLocation
	case *tg.MessageMediaVenue:
		return domain.MsgVenue
	case *tg.MessageMediaGame:
		return domain.MsgGame
	case *tg.MessageMediaInvoice:
		return domain.MsgInvoice
	case *tg.MessageMediaWebPage:
		return domain.MsgWebpage
	case *tg.MessageMediaDice:
		return domain.MsgDice
	case *tg.MessageMediaPoll:
		return domain.MsgPoll
	default:
		return domain.MsgMedia
	}
}

// resolveDocumentType further splits tg.MessageMediaDocument by the document
// attribute set, since gotd/td does not distinguish voice/video-note/
// animation/sticker/audio at the MessageMediaClass level.
func resolveDocumentType(m *tg.MessageMediaDocument) domain.MessageType {
	doc, ok := m.Document.AsNotEmpty()
	if !ok {
		return domain.MsgDocument
	}
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeSticker:
			return domain.MsgSticker
		case *tg.DocumentAttributeAnimated:
			return domain.MsgAnimation
		case *tg.DocumentAttributeVideo:
			if a.RoundMessage {
				return domain.MsgVideoNote
			}
			return domain.MsgVideo
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return domain.MsgVoice
			}
			return domain.MsgAudio
		}
	}
	return domain.MsgDocument
}
