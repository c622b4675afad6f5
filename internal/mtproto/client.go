// Package mtproto is the thin façade over gotd/td's MTProto transport that
// every other subsystem talks to instead of importing github.com/gotd/td
// directly. It exposes a polymorphic Client the connection supervisor drives
// through start/close, the realtime package feeds update callbacks from, and
// the sync worker calls paginated history and peer-resolution methods on.
// Construction follows the teacher's internal/adapters/telegram/core.New and
// internal/app.Init wiring (telegram.Options{SessionStorage, UpdateHandler,
// Middlewares, Device}), generalized from a single global client to one
// instance per supervised account.
package mtproto

import (
	"context"
	"fmt"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/infra/logger"
	"telegram-sync/internal/ratelimit"

	tdsession "github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// NewMessageEvent, EditMessageEvent and DeleteMessageEvent are the realtime
// callback payloads the façade hands to registered handlers, shielding
// internal/realtime from gotd/td's own dispatcher types.
type NewMessageEvent struct {
	Entities tg.Entities
	Message  tg.MessageClass
}

type EditMessageEvent struct {
	Entities tg.Entities
	Message  tg.MessageClass
}

type DeleteMessageEvent struct {
	ChannelID int64 // 0 when the delete came from a chat-less messages.updateDeleteMessages
	Messages  []int
}

// HistoryPage is one page of messages.getHistory, already unwrapped from the
// tg.MessagesMessagesClass union.
type HistoryPage struct {
	Messages []tg.MessageClass
	Users    []tg.UserClass
	Chats    []tg.ChatClass
	Count    int // total messages available server-side, for progress tracking
}

// HistoryRequest mirrors the parameters the sync worker needs to drive
// pagination in either direction, per the sync job contract's window
// determination by job type.
type HistoryRequest struct {
	Peer      tg.InputPeerClass
	OffsetID  int
	AddOffset int
	Limit     int
	MaxID     int
	MinID     int
}

// Client is the polymorphic façade every consumer of the MTProto layer
// depends on. gotdClient is the production implementation; FakeClient (in
// fake.go) backs unit tests that cannot reach the real network.
type Client interface {
	Start(ctx context.Context, noninteractive bool) error
	Close(ctx context.Context) error
	GetMe(ctx context.Context) (*tg.User, error)

	OnNewMessage(fn func(NewMessageEvent))
	OnEditMessage(fn func(EditMessageEvent))
	OnDeleteMessage(fn func(DeleteMessageEvent))
	StartUpdatesLoop(ctx context.Context) error

	GetHistory(ctx context.Context, req HistoryRequest) (HistoryPage, error)
	ResolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error)
	ResolvePhone(ctx context.Context, phone string) (tg.InputPeerClass, error)
	GetUsers(ctx context.Context, ids []tg.InputUserClass) ([]tg.UserClass, error)
	SendMessage(ctx context.Context, peer tg.InputPeerClass, text string) error
}

// gotdClient wraps *telegram.Client/*tg.Client for a single supervised
// account. Every outbound RPC is routed through limiter.WrapCall so the rate limiter
// sees every call uniformly, per "every call is wrapped by the rate limiter"
// in the adapter's component design.
type gotdClient struct {
	accountID string
	phone     string

	client  *telegram.Client
	api     *tg.Client
	updMgr  *updates.Manager
	limiter *ratelimit.Limiter

	dispatch tg.UpdateDispatcher

	onNewMessage    func(NewMessageEvent)
	onEditMessage   func(EditMessageEvent)
	onDeleteMessage func(DeleteMessageEvent)
}

// Config bundles what the daemon's account loader knows before a gotdClient
// can be built: MTProto app credentials, the account's phone number (for
// auth.Flow when a session must be created interactively outside the
// daemon), a dedicated session storage per account and the shared rate
// limiter every account's adapter reports into.
type Config struct {
	APIID   int
	APIHash string
	Phone   string
	TestDC  bool
	Session tdsession.Storage
	Limiter *ratelimit.Limiter
}

// NewClient builds a gotdClient for one account, wiring the update
// dispatcher and manager: updMgr is built with the dispatcher as its
// handler, so updates it receives are routed into the dispatcher's
// callbacks.
func NewClient(accountID string, cfg Config) *gotdClient {
	c := &gotdClient{accountID: accountID, phone: cfg.Phone, limiter: cfg.Limiter}
	c.dispatch = tg.NewUpdateDispatcher()

	updConfig := updates.Config{Handler: &c.dispatch}
	c.updMgr = updates.New(updConfig)

	options := telegram.Options{
		SessionStorage: cfg.Session,
		UpdateHandler:  c.updMgr,
		Device: telegram.DeviceConfig{
			DeviceModel:   "telegram-sync",
			SystemVersion: "linux",
			AppVersion:    "1.0.0",
		},
	}
	if cfg.TestDC {
		options.DCList = dcs.Test()
	}
	c.client = telegram.NewClient(cfg.APIID, cfg.APIHash, options)
	c.api = c.client.API()

	c.dispatch.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.emitNewMessage(e, u.Message)
		return nil
	})
	c.dispatch.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.emitNewMessage(e, u.Message)
		return nil
	})
	c.dispatch.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		c.emitEditMessage(e, u.Message)
		return nil
	})
	c.dispatch.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		c.emitEditMessage(e, u.Message)
		return nil
	})
	c.dispatch.OnDeleteMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteMessages) error {
		if c.onDeleteMessage != nil {
			c.onDeleteMessage(DeleteMessageEvent{Messages: u.Messages})
		}
		return nil
	})
	c.dispatch.OnDeleteChannelMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteChannelMessages) error {
		if c.onDeleteMessage != nil {
			c.onDeleteMessage(DeleteMessageEvent{ChannelID: u.ChannelID, Messages: u.Messages})
		}
		return nil
	})

	return c
}

func (c *gotdClient) emitNewMessage(e tg.Entities, m tg.MessageClass) {
	if c.onNewMessage != nil {
		c.onNewMessage(NewMessageEvent{Entities: e, Message: m})
	}
}

func (c *gotdClient) emitEditMessage(e tg.Entities, m tg.MessageClass) {
	if c.onEditMessage != nil {
		c.onEditMessage(EditMessageEvent{Entities: e, Message: m})
	}
}

func (c *gotdClient) OnNewMessage(fn func(NewMessageEvent))       { c.onNewMessage = fn }
func (c *gotdClient) OnEditMessage(fn func(EditMessageEvent))     { c.onEditMessage = fn }
func (c *gotdClient) OnDeleteMessage(fn func(DeleteMessageEvent)) { c.onDeleteMessage = fn }

// Start connects and, when noninteractive is false, runs auth.Flow with a
// phone-only authenticator that cannot answer a login-code or 2FA prompt
// itself; the daemon only ever calls Start(ctx, true), which instead treats
// "not authorized" as a hard domain.KindAuthRequired error, per the
// "start(noninteractive)" entry in the adapter's component design. The
// interactive mode exists for a future `telegram-sync account login` command
// that hasn't been wired into the CLI yet.
func (c *gotdClient) Start(ctx context.Context, noninteractive bool) error {
	runErrCh := make(chan error, 1)
	readyCh := make(chan error, 1)

	go func() {
		runErrCh <- c.client.Run(ctx, func(runCtx context.Context) error {
			status, err := c.client.Auth().Status(runCtx)
			if err != nil {
				readyCh <- domain.Wrap(domain.KindNetworkError, "auth status", err)
				return err
			}
			if !status.Authorized {
				if noninteractive {
					err := domain.NewError(domain.KindAuthRequired, fmt.Sprintf("account %s has no valid session", c.accountID))
					readyCh <- err
					return err
				}
				flow := auth.NewFlow(phoneOnlyAuthenticator{phone: c.phone}, auth.SendCodeOptions{})
				if err := c.client.Auth().IfNecessary(runCtx, flow); err != nil {
					wrapped := domain.Wrap(domain.KindAuthRequired, "interactive login", err)
					readyCh <- wrapped
					return wrapped
				}
			}
			readyCh <- nil
			<-runCtx.Done()
			return runCtx.Err()
		})
	}()

	select {
	case err := <-readyCh:
		return err
	case err := <-runErrCh:
		if err != nil {
			return classify("client.Run", err)
		}
		return nil
	}
}

func (c *gotdClient) Close(ctx context.Context) error {
	return nil
}

func (c *gotdClient) GetMe(ctx context.Context) (*tg.User, error) {
	var user *tg.User
	err := c.limiter.WrapCall("users.getMe", func() error {
		self, err := c.client.Self(ctx)
		if err != nil {
			return err
		}
		user = self
		return nil
	})
	if err != nil {
		return nil, classify("users.getMe", err)
	}
	return user, nil
}

// StartUpdatesLoop runs the update manager's own event loop, which is what
// actually invokes the OnNewMessage/OnEditMessage/OnDeleteMessage callbacks
// registered above as updates.Manager replays gaps and live updates, per
// app.go's "updates_manager" service start. Blocks until ctx is canceled.
func (c *gotdClient) StartUpdatesLoop(ctx context.Context) error {
	self, err := c.client.Self(ctx)
	if err != nil {
		return classify("users.getMe", err)
	}
	err = c.updMgr.Run(ctx, c.api, self.ID, updates.AuthOptions{
		OnStart: func(ctx context.Context) {
			logger.Logger().Debug("updates manager started", zap.String("account", c.accountID))
		},
	})
	if err != nil && ctx.Err() == nil {
		return classify("updates.Manager.Run", err)
	}
	return nil
}

func (c *gotdClient) GetHistory(ctx context.Context, req HistoryRequest) (HistoryPage, error) {
	var page HistoryPage
	err := c.limiter.WrapCall("messages.getHistory", func() error {
		resp, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:      req.Peer,
			OffsetID:  req.OffsetID,
			AddOffset: req.AddOffset,
			Limit:     req.Limit,
			MaxID:     req.MaxID,
			MinID:     req.MinID,
		})
		if err != nil {
			return err
		}
		switch m := resp.(type) {
		case *tg.MessagesMessages:
			page = HistoryPage{Messages: m.Messages, Users: m.Users, Chats: m.Chats, Count: len(m.Messages)}
		case *tg.MessagesMessagesSlice:
			page = HistoryPage{Messages: m.Messages, Users: m.Users, Chats: m.Chats, Count: m.Count}
		case *tg.MessagesChannelMessages:
			page = HistoryPage{Messages: m.Messages, Users: m.Users, Chats: m.Chats, Count: m.Count}
		default:
			return fmt.Errorf("unexpected messages.getHistory response type %T", resp)
		}
		return nil
	})
	if err != nil {
		return HistoryPage{}, classify("messages.getHistory", err)
	}
	return page, nil
}

func (c *gotdClient) ResolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error) {
	var peer tg.InputPeerClass
	err := c.limiter.WrapCall("contacts.resolveUsername", func() error {
		resp, err := c.api.ContactsResolveUsername(ctx, username)
		if err != nil {
			return err
		}
		peer = resolvedPeer(resp)
		if peer == nil {
			return fmt.Errorf("contacts.resolveUsername: no peer resolved for %q", username)
		}
		return nil
	})
	if err != nil {
		return nil, classify("contacts.resolveUsername", err)
	}
	return peer, nil
}

func (c *gotdClient) ResolvePhone(ctx context.Context, phone string) (tg.InputPeerClass, error) {
	var peer tg.InputPeerClass
	err := c.limiter.WrapCall("contacts.resolvePhone", func() error {
		resp, err := c.api.ContactsResolvePhone(ctx, phone)
		if err != nil {
			return err
		}
		peer = resolvedPeer(resp)
		if peer == nil {
			return fmt.Errorf("contacts.resolvePhone: no peer resolved for %q", phone)
		}
		return nil
	})
	if err != nil {
		return nil, classify("contacts.resolvePhone", err)
	}
	return peer, nil
}

// resolvedPeer converts a tg.ContactsResolvedPeer (shared response shape of
// both resolveUsername and resolvePhone) into an InputPeer by looking up the
// matching access hash among the returned users/chats.
func resolvedPeer(resp *tg.ContactsResolvedPeer) tg.InputPeerClass {
	switch p := resp.Peer.(type) {
	case *tg.PeerUser:
		for _, u := range resp.Users {
			if user, ok := u.(*tg.User); ok && user.ID == p.UserID {
				return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerChannel:
		for _, ch := range resp.Chats {
			if channel, ok := ch.(*tg.Channel); ok && channel.ID == p.ChannelID {
				return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
			}
		}
	}
	return nil
}

func (c *gotdClient) GetUsers(ctx context.Context, ids []tg.InputUserClass) ([]tg.UserClass, error) {
	var out []tg.UserClass
	err := c.limiter.WrapCall("users.getUsers", func() error {
		users, err := c.api.UsersGetUsers(ctx, ids)
		if err != nil {
			return err
		}
		out = users
		return nil
	})
	if err != nil {
		return nil, classify("users.getUsers", err)
	}
	return out, nil
}

func (c *gotdClient) SendMessage(ctx context.Context, peer tg.InputPeerClass, text string) error {
	nonce, err := clock.Nonce63()
	if err != nil {
		return domain.Wrap(domain.KindGeneralError, "generate send nonce", err)
	}
	err = c.limiter.WrapCall("messages.sendMessage", func() error {
		_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:     peer,
			Message:  text,
			RandomID: nonce,
		})
		return err
	})
	if err != nil {
		return classify("messages.sendMessage", err)
	}
	return nil
}
