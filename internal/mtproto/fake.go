package mtproto

import (
	"context"
	"strconv"

	"github.com/gotd/td/tg"
)

// FakeClient is an in-memory Client double for tests in internal/syncjob,
// internal/realtime and internal/supervisor that need to drive the façade
// without a live MTProto connection.
type FakeClient struct {
	Me *tg.User

	HistoryPages map[string][]HistoryPage // keyed by fmt.Sprint(req.Peer)
	Peers        map[string]tg.InputPeerClass
	Users        []tg.UserClass
	SentMessages []string

	StartErr   error
	HistoryErr error
	historyI   int

	// MeErrs is consumed one entry per GetMe call, in order; once exhausted,
	// GetMe always succeeds with Me. Lets a test make the first call (during
	// supervisor connect) succeed and a later one (a health probe) fail.
	MeErrs []error
	meCall int

	onNewMessage    func(NewMessageEvent)
	onEditMessage   func(EditMessageEvent)
	onDeleteMessage func(DeleteMessageEvent)
}

var _ Client = (*FakeClient)(nil)

func NewFakeClient() *FakeClient {
	return &FakeClient{Peers: map[string]tg.InputPeerClass{}}
}

func (f *FakeClient) Start(ctx context.Context, noninteractive bool) error { return f.StartErr }
func (f *FakeClient) Close(ctx context.Context) error                     { return nil }

func (f *FakeClient) GetMe(ctx context.Context) (*tg.User, error) {
	if f.meCall < len(f.MeErrs) {
		err := f.MeErrs[f.meCall]
		f.meCall++
		if err != nil {
			return nil, err
		}
	}
	return f.Me, nil
}

func (f *FakeClient) OnNewMessage(fn func(NewMessageEvent))       { f.onNewMessage = fn }
func (f *FakeClient) OnEditMessage(fn func(EditMessageEvent))     { f.onEditMessage = fn }
func (f *FakeClient) OnDeleteMessage(fn func(DeleteMessageEvent)) { f.onDeleteMessage = fn }

func (f *FakeClient) StartUpdatesLoop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// EmitNewMessage lets a test drive the registered handler directly, as if a
// live update had arrived.
func (f *FakeClient) EmitNewMessage(e NewMessageEvent) {
	if f.onNewMessage != nil {
		f.onNewMessage(e)
	}
}

func (f *FakeClient) EmitEditMessage(e EditMessageEvent) {
	if f.onEditMessage != nil {
		f.onEditMessage(e)
	}
}

func (f *FakeClient) EmitDeleteMessage(e DeleteMessageEvent) {
	if f.onDeleteMessage != nil {
		f.onDeleteMessage(e)
	}
}

func (f *FakeClient) GetHistory(ctx context.Context, req HistoryRequest) (HistoryPage, error) {
	if f.HistoryErr != nil {
		return HistoryPage{}, f.HistoryErr
	}
	pages := f.HistoryPages[peerKey(req.Peer)]
	if f.historyI >= len(pages) {
		return HistoryPage{}, nil
	}
	p := pages[f.historyI]
	f.historyI++
	return p, nil
}

func (f *FakeClient) ResolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error) {
	return f.Peers[username], nil
}

func (f *FakeClient) ResolvePhone(ctx context.Context, phone string) (tg.InputPeerClass, error) {
	return f.Peers[phone], nil
}

func (f *FakeClient) GetUsers(ctx context.Context, ids []tg.InputUserClass) ([]tg.UserClass, error) {
	return f.Users, nil
}

func (f *FakeClient) SendMessage(ctx context.Context, peer tg.InputPeerClass, text string) error {
	f.SentMessages = append(f.SentMessages, text)
	return nil
}

func peerKey(peer tg.InputPeerClass) string {
	switch p := peer.(type) {
	case *tg.InputPeerUser:
		return "user:" + strconv.FormatInt(p.UserID, 10)
	case *tg.InputPeerChat:
		return "chat:" + strconv.FormatInt(p.ChatID, 10)
	case *tg.InputPeerChannel:
		return "channel:" + strconv.FormatInt(p.ChannelID, 10)
	default:
		return "unknown"
	}
}
