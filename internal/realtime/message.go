package realtime

import (
	"encoding/json"

	"github.com/gotd/td/tg"
	"github.com/shopspring/decimal"
)

// ReplyToID extracts the message id msg replies to, or 0 if it is not a
// reply. Shared by the realtime handlers and the sync worker's history
// parser so both populate reply_to_id the same way.
func ReplyToID(msg *tg.Message) int64 {
	replyTo, ok := msg.GetReplyTo()
	if !ok {
		return 0
	}
	header, ok := replyTo.(*tg.MessageReplyHeader)
	if !ok {
		return 0
	}
	return int64(header.ReplyToMsgID)
}

// ForwardFromID extracts the original sender of a forwarded message, or ""
// if msg is not a forward or the origin is hidden.
func ForwardFromID(msg *tg.Message) string {
	fwd, ok := msg.GetFwdFrom()
	if !ok {
		return ""
	}
	fromID, ok := fwd.GetFromID()
	if !ok {
		return ""
	}
	return PeerChatID(fromID)
}

// BuildRawJSON captures the fields of a raw tg.Message that downstream CLI
// consumers (`sql`, future inspection commands) might want, coercing every
// field wide enough to lose precision in a JSON number (peer/channel ids,
// access hashes) to a decimal string, per the sync job contract's "coerce
// bigint fields to decimal strings for raw_json".
func BuildRawJSON(msg *tg.Message, chatID string) (string, error) {
	raw := map[string]any{
		"id":        msg.ID,
		"chat_id":   chatID,
		"date":      msg.Date,
		"edit_date": msg.EditDate,
		"out":       msg.Out,
		"mentioned": msg.Mentioned,
		"silent":    msg.Silent,
		"message":   msg.Message,
	}
	if fromID, ok := msg.GetFromID(); ok {
		raw["from_id"] = peerIDDecimal(fromID)
	}
	raw["peer_id"] = peerIDDecimal(msg.PeerID)
	if replyTo, ok := msg.GetReplyTo(); ok {
		if header, ok := replyTo.(*tg.MessageReplyHeader); ok && header.ReplyToMsgID != 0 {
			raw["reply_to_message_id"] = decimal.NewFromInt(int64(header.ReplyToMsgID)).String()
		}
	}
	if fwd, ok := msg.GetFwdFrom(); ok {
		if fromID, ok := fwd.GetFromID(); ok {
			raw["forward_from_id"] = peerIDDecimal(fromID)
		}
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// peerIDDecimal renders a tg.PeerClass' numeric id as a decimal string so
// channel/chat/user ids past 2^53 survive a round trip through any JSON
// consumer that parses numbers as float64.
func peerIDDecimal(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return decimal.NewFromInt(p.UserID).String()
	case *tg.PeerChat:
		return decimal.NewFromInt(p.ChatID).String()
	case *tg.PeerChannel:
		return decimal.NewFromInt(p.ChannelID).String()
	default:
		return ""
	}
}
