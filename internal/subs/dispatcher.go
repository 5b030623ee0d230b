package subs

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/cache"
	"github.com/matheus3301/parley/internal/fetch"
	"github.com/matheus3301/parley/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher opens exactly one logical subscription per channel and
// reconciles every pushed event into the store. Within a channel, events
// apply in arrival order; across channels no order is assumed, which is
// why message arrival always point-fetches the owning chat.
type Dispatcher struct {
	store  *cache.Store
	coord  *fetch.Coordinator
	tr     transport.SubscriptionTransport
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	machines map[transport.Channel]*Machine
	closers  map[transport.Channel]func()
	stops    map[transport.Channel]chan struct{}
}

// NewDispatcher creates a dispatcher over the given transport.
func NewDispatcher(store *cache.Store, coord *fetch.Coordinator, tr transport.SubscriptionTransport, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	machines := make(map[transport.Channel]*Machine, len(transport.Channels()))
	for _, ch := range transport.Channels() {
		machines[ch] = NewMachine(ch, b)
	}
	return &Dispatcher{
		store:    store,
		coord:    coord,
		tr:       tr,
		bus:      b,
		logger:   logger,
		machines: machines,
		closers:  make(map[transport.Channel]func()),
		stops:    make(map[transport.Channel]chan struct{}),
	}
}

// Machine exposes a channel's state machine, mainly for tests and status
// reporting.
func (d *Dispatcher) Machine(ch transport.Channel) *Machine {
	return d.machines[ch]
}

// Start opens all five channels and returns only once every one of them
// has received the server's creation acknowledgment, so callers know the
// store is receiving live updates before proceeding. There is no timeout;
// cancel ctx to abort. Opening an already-open dispatcher fails fast.
func (d *Dispatcher) Start(ctx context.Context) error {
	// The derived group context is canceled the moment Wait returns, so
	// it may only gate the ack waits. Event handlers keep ctx, which the
	// caller holds open for the dispatcher's lifetime.
	g, ackCtx := errgroup.WithContext(ctx)
	for _, ch := range transport.Channels() {
		ch := ch
		g.Go(func() error {
			return d.open(ctx, ackCtx, ch)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) open(ctx, ackCtx context.Context, ch transport.Channel) error {
	m := d.machines[ch]
	if err := m.Transition(Opening); err != nil {
		return err
	}

	ready := make(chan struct{})
	var once sync.Once

	closeFn, err := d.tr.OpenSubscription(ackCtx, ch,
		func(evt transport.Event) {
			if _, ok := evt.(transport.SubscriptionCreated); ok {
				if err := m.Transition(Open); err != nil {
					d.logger.Warn("duplicate subscription ack", zap.String("channel", string(ch)))
					return
				}
				once.Do(func() { close(ready) })
				return
			}
			d.handle(ctx, ch, evt)
		},
		func(err error) {
			d.onTransportError(ch, err)
		},
	)
	if err != nil {
		_ = m.Transition(Closed)
		return fmt.Errorf("open %s subscription: %w", ch, err)
	}

	stopped := make(chan struct{})
	d.mu.Lock()
	d.closers[ch] = closeFn
	d.stops[ch] = stopped
	d.mu.Unlock()

	if m.Current() == Closed {
		// Stop or a transport error won the race while the subscription
		// was still registering.
		d.closeChannel(ch)
		return fmt.Errorf("%s subscription closed before ack", ch)
	}

	select {
	case <-ready:
		return nil
	case <-stopped:
		return fmt.Errorf("%s subscription closed before ack", ch)
	case <-ackCtx.Done():
		d.closeChannel(ch)
		return ackCtx.Err()
	}
}

// onTransportError handles a terminal transport failure on one channel:
// the channel is closed so it may be reopened, and a notice is published.
func (d *Dispatcher) onTransportError(ch transport.Channel, err error) {
	d.logger.Warn("subscription transport error", zap.String("channel", string(ch)), zap.Error(err))
	d.closeChannel(ch)
	if transport.IsConnectionError(err) {
		d.bus.Emit(bus.KindNetConnectionError, err.Error())
	} else {
		d.bus.Emit(bus.KindNetServerError, err.Error())
	}
}

func (d *Dispatcher) closeChannel(ch transport.Channel) {
	d.mu.Lock()
	closeFn := d.closers[ch]
	delete(d.closers, ch)
	if stopped, ok := d.stops[ch]; ok {
		close(stopped)
		delete(d.stops, ch)
	}
	d.mu.Unlock()

	if closeFn != nil {
		closeFn()
	}
	if m := d.machines[ch]; m.Current() != Closed {
		_ = m.Transition(Closed)
	}
}

// Stop force-closes every channel. Idempotent; safe when already closed.
func (d *Dispatcher) Stop() {
	for _, ch := range transport.Channels() {
		d.closeChannel(ch)
	}
}

// handle applies one pushed event to the store. Mutating the store happens
// only here and in the coordinator.
func (d *Dispatcher) handle(ctx context.Context, ch transport.Channel, evt transport.Event) {
	switch e := evt.(type) {
	case transport.UpdatedAccount:
		// The accounts cache mirrors the viewer's own profile; other
		// users' updates arrive through explicit fetches.
		if e.Account.UserID == d.store.Self() {
			d.store.Accounts.UpsertOne(e.Account)
			d.bus.Emit(bus.KindAccountUpserted, e.Account.UserID)
		}
	case transport.UpdatedProfilePic:
		d.coord.FetchPic(ctx, cache.PicKey{Entity: cache.PicEntityAccount, ID: e.UserID}, fetch.RefreshOnly)
	case transport.BlockedAccount:
		d.store.Blocked.UpsertOne(e.Account)
		d.bus.Emit(bus.KindAccountUpserted, e.Account.UserID)
	case transport.UnblockedAccount:
		d.store.Blocked.RemoveOne(e.UserID)
		d.bus.Emit(bus.KindAccountUpserted, e.UserID)
	case transport.NewContact:
		d.store.Contacts.UpsertOne(e.Account)
		d.bus.Emit(bus.KindAccountUpserted, e.Account.UserID)
	case transport.DeletedContact:
		d.store.Contacts.RemoveOne(e.UserID)
		d.bus.Emit(bus.KindAccountUpserted, e.UserID)
	case transport.DeletedAccount:
		d.cascadeDeletedAccount(e.UserID)

	case transport.GroupChatID:
		d.coord.FetchChat(ctx, e.ChatID, fetch.IfMissing)
	case transport.UpdatedGroupChat:
		d.applyGroupChatUpdate(ctx, e)
	case transport.UpdatedGroupChatPic:
		d.coord.FetchPic(ctx, cache.PicKey{Entity: cache.PicEntityGroupChat, ID: e.ChatID}, fetch.RefreshOnly)
	case transport.DeletedPrivateChat:
		d.store.Chats.RemoveOne(e.ChatID)
		d.bus.Emit(bus.KindChatDeleted, e.ChatID)

	case transport.NewMessage:
		d.attachMessage(ctx, e.Message)
	case transport.DeletedMessage:
		d.removeMessage(ctx, e.ChatID, e.MessageID)
	case transport.UpdatedPollMessage:
		d.replacePoll(e)
	case transport.UserChatMessagesRemoval:
		d.removeUserMessages(ctx, e.ChatID, e.UserID)

	case transport.OnlineStatusEvent:
		d.store.Online.UpsertOne(e.Status)
		d.bus.Emit(bus.KindPresenceChanged, e.Status.UserID)
	case transport.TypingStatusEvent:
		d.store.Typing.UpsertOne(e.Status)
		d.bus.Emit(bus.KindTypingChanged, e.Status.Key())

	default:
		d.logger.Warn("unhandled event", zap.String("channel", string(ch)), zap.Any("event", evt))
	}
}

// cascadeDeletedAccount removes every trace of a deleted user in one
// synchronous pass.
func (d *Dispatcher) cascadeDeletedAccount(userID int32) {
	d.store.Blocked.RemoveOne(userID)
	d.store.Contacts.RemoveOne(userID)
	d.store.Accounts.RemoveOne(userID)
	d.store.Online.RemoveOne(userID)
	d.coord.RemovePic(cache.PicKey{Entity: cache.PicEntityAccount, ID: userID})
	d.store.Typing.RemoveWhere(func(s cache.TypingStatus) bool { return s.UserID == userID })
	if chat, ok := d.store.PrivateChatWith(userID); ok {
		d.store.Chats.RemoveOne(chat.ChatID)
		d.bus.Emit(bus.KindChatDeleted, chat.ChatID)
	}
	d.bus.Emit(bus.KindAccountDeleted, userID)
}

// applyGroupChatUpdate merges a partial update into the cached chat. Nil
// event fields mean unchanged.
func (d *Dispatcher) applyGroupChatUpdate(ctx context.Context, e transport.UpdatedGroupChat) {
	if slices.Contains(e.RemovedUserIDs, d.store.Self()) {
		d.store.Chats.RemoveOne(e.ChatID)
		d.bus.Emit(bus.KindChatLeft, e.ChatID)
		return
	}

	chat, ok := d.store.Chats.GetByID(e.ChatID)
	if !ok {
		// Not cached yet; a point fetch yields the post-update chat.
		d.coord.FetchChat(ctx, e.ChatID, fetch.IfMissing)
		return
	}

	if e.Title != nil {
		chat.Title = *e.Title
	}
	if e.Description != nil {
		chat.Description = *e.Description
	}
	if e.IsBroadcast != nil {
		chat.IsBroadcast = *e.IsBroadcast
	}
	if e.Publicity != nil {
		chat.Publicity = *e.Publicity
	}
	if e.AdminIDs != nil {
		chat.AdminIDs = e.AdminIDs
	}
	for _, id := range e.NewUserIDs {
		if !slices.Contains(chat.UserIDs, id) {
			chat.UserIDs = append(chat.UserIDs, id)
		}
	}
	for _, id := range e.RemovedUserIDs {
		if i := slices.Index(chat.UserIDs, id); i >= 0 {
			chat.UserIDs = slices.Delete(chat.UserIDs, i, i+1)
		}
	}
	d.store.Chats.UpsertOne(chat)
	d.bus.Emit(bus.KindChatUpserted, chat.ChatID)
}

// attachMessage records a new message as its chat's latest. The chat is
// always point-fetched first so a message arriving before its chat's
// creation event does not strand.
func (d *Dispatcher) attachMessage(ctx context.Context, m cache.Message) {
	d.coord.FetchChat(ctx, m.ChatID, fetch.IfMissing)

	chat, ok := d.store.Chats.GetByID(m.ChatID)
	if !ok {
		// Fetch failed (e.g. offline); the message event alone cannot
		// create the chat.
		return
	}
	if chat.LastMessage == nil || !m.Sent.Before(chat.LastMessage.Sent) {
		chat.LastMessage = &m
		d.store.Chats.UpsertOne(chat)
	}
	d.bus.Emit(bus.KindMessageUpserted, m.MessageID)
}

func (d *Dispatcher) removeMessage(ctx context.Context, chatID, messageID int32) {
	d.coord.RemoveMessageFile(messageID)

	if chat, ok := d.store.Chats.GetByID(chatID); ok &&
		chat.LastMessage != nil && chat.LastMessage.MessageID == messageID {
		chat.LastMessage = nil
		d.store.Chats.UpsertOne(chat)
		// Re-read the chat so the next-newest message takes the slot.
		d.coord.FetchChat(ctx, chatID, fetch.RefreshOnly)
	}
	d.bus.Emit(bus.KindMessageDeleted, messageID)
}

func (d *Dispatcher) replacePoll(e transport.UpdatedPollMessage) {
	chat, ok := d.store.Chats.GetByID(e.ChatID)
	if !ok || chat.LastMessage == nil || chat.LastMessage.MessageID != e.MessageID {
		return
	}
	msg := *chat.LastMessage
	poll := e.Poll
	msg.Poll = &poll
	chat.LastMessage = &msg
	d.store.Chats.UpsertOne(chat)
	d.bus.Emit(bus.KindMessageUpserted, e.MessageID)
}

func (d *Dispatcher) removeUserMessages(ctx context.Context, chatID, userID int32) {
	if chat, ok := d.store.Chats.GetByID(chatID); ok &&
		chat.LastMessage != nil && chat.LastMessage.SenderID == userID {
		chat.LastMessage = nil
		d.store.Chats.UpsertOne(chat)
		d.coord.FetchChat(ctx, chatID, fetch.RefreshOnly)
	}
	d.bus.Emit(bus.KindMessageDeleted, chatID)
}
