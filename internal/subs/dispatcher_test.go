package subs

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/parley/internal/blob"
	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/cache"
	"github.com/matheus3301/parley/internal/fetch"
	"github.com/matheus3301/parley/internal/page"
	"github.com/matheus3301/parley/internal/transport"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mu        sync.Mutex
	chatCalls int
	chatFn    func(ctx context.Context, chatID int32) (*cache.Chat, error)
}

func (f *fakeAPI) Chat(ctx context.Context, chatID int32) (*cache.Chat, error) {
	// The real client aborts on a canceled context; mirror that so
	// handlers running after Start are exercised realistically.
	if err := ctx.Err(); err != nil {
		return nil, &transport.ConnectionError{Err: err}
	}
	f.mu.Lock()
	f.chatCalls++
	fn := f.chatFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, chatID)
	}
	return nil, nil
}

func (f *fakeAPI) chatCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls
}

func (f *fakeAPI) Account(context.Context, int32) (*cache.Account, error) { return nil, nil }
func (f *fakeAPI) Chats(context.Context) ([]cache.Chat, error)           { return nil, nil }
func (f *fakeAPI) Contacts(context.Context) ([]cache.Account, error)     { return nil, nil }
func (f *fakeAPI) BlockedUsers(context.Context) ([]cache.Account, error) { return nil, nil }
func (f *fakeAPI) OnlineStatus(context.Context, int32) (*cache.OnlineStatus, error) {
	return nil, nil
}
func (f *fakeAPI) TypingStatuses(context.Context) ([]cache.TypingStatus, error) { return nil, nil }
func (f *fakeAPI) SearchUsers(context.Context, string, int32, *string) (page.Page[cache.AccountPreview], error) {
	return page.Page[cache.AccountPreview]{}, nil
}
func (f *fakeAPI) SearchPublicChats(context.Context, string, int32, *string) (page.Page[cache.Chat], error) {
	return page.Page[cache.Chat]{}, nil
}
func (f *fakeAPI) ProfilePic(context.Context, int32, transport.PicSize) (*transport.Blob, error) {
	return nil, nil
}
func (f *fakeAPI) GroupChatPic(context.Context, int32, transport.PicSize) (*transport.Blob, error) {
	return nil, nil
}
func (f *fakeAPI) MessageFile(context.Context, int32) (*transport.Blob, error) { return nil, nil }

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[transport.Channel]func(transport.Event)
	errFns   map[transport.Channel]func(error)
	closed   map[transport.Channel]int
	openErr  map[transport.Channel]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[transport.Channel]func(transport.Event)),
		errFns:   make(map[transport.Channel]func(error)),
		closed:   make(map[transport.Channel]int),
		openErr:  make(map[transport.Channel]error),
	}
}

func (f *fakeTransport) OpenSubscription(_ context.Context, ch transport.Channel, onEvent func(transport.Event), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErr[ch]; err != nil {
		return nil, err
	}
	f.handlers[ch] = onEvent
	f.errFns[ch] = onError
	return func() {
		f.mu.Lock()
		f.closed[ch]++
		f.mu.Unlock()
	}, nil
}

// waitOpen blocks until n channels have registered handlers.
func (f *fakeTransport) waitOpen(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := len(f.handlers)
		f.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d open subscriptions", n)
}

func (f *fakeTransport) push(t *testing.T, ch transport.Channel, evt transport.Event) {
	t.Helper()
	f.mu.Lock()
	handler := f.handlers[ch]
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("channel %s has no handler", ch)
	}
	handler(evt)
}

func (f *fakeTransport) fail(t *testing.T, ch transport.Channel, err error) {
	t.Helper()
	f.mu.Lock()
	fn := f.errFns[ch]
	f.mu.Unlock()
	if fn == nil {
		t.Fatalf("channel %s has no error handler", ch)
	}
	fn(err)
}

func (f *fakeTransport) closeCount(ch transport.Channel) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[ch]
}

func testDispatcher(t *testing.T) (*Dispatcher, *cache.Store, *fakeAPI, *fakeTransport, *bus.Bus) {
	t.Helper()
	store := cache.NewStore()
	api := &fakeAPI{}
	blobs, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob.NewStore: %v", err)
	}
	b := bus.New()
	coord := fetch.NewCoordinator(store, api, blobs, b, zap.NewNop(), fetch.Policy{})
	tr := newFakeTransport()
	d := NewDispatcher(store, coord, tr, b, zap.NewNop())
	return d, store, api, tr, b
}

// startDispatcher runs Start, acks every channel, and fails the test if
// Start does not settle.
func startDispatcher(t *testing.T, d *Dispatcher, tr *fakeTransport) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Start(context.Background()) }()
	tr.waitOpen(t, len(transport.Channels()))
	for _, ch := range transport.Channels() {
		tr.push(t, ch, transport.SubscriptionCreated{})
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after all acks")
	}
}

func TestStartWaitsForEveryAck(t *testing.T) {
	d, _, _, tr, _ := testDispatcher(t)

	done := make(chan error, 1)
	go func() { done <- d.Start(context.Background()) }()
	tr.waitOpen(t, len(transport.Channels()))

	// Ack four of the five channels; Start must stay pending.
	channels := transport.Channels()
	for _, ch := range channels[:len(channels)-1] {
		tr.push(t, ch, transport.SubscriptionCreated{})
	}
	select {
	case err := <-done:
		t.Fatalf("Start returned %v with one ack outstanding", err)
	case <-time.After(100 * time.Millisecond):
	}

	tr.push(t, channels[len(channels)-1], transport.SubscriptionCreated{})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after final ack")
	}

	for _, ch := range channels {
		if got := d.Machine(ch).Current(); got != Open {
			t.Errorf("channel %s state = %s, want %s", ch, got, Open)
		}
	}
}

func TestEventFetchesOutliveStart(t *testing.T) {
	d, store, api, tr, _ := testDispatcher(t)
	api.chatFn = func(ctx context.Context, chatID int32) (*cache.Chat, error) {
		if err := ctx.Err(); err != nil {
			return nil, &transport.ConnectionError{Err: err}
		}
		return &cache.Chat{ChatID: chatID, Kind: cache.ChatGroup}, nil
	}
	startDispatcher(t, d, tr)

	// A message for an uncached chat arriving after Start settled must
	// still trigger the point fetch.
	tr.push(t, transport.ChannelMessages, transport.NewMessage{
		Message: cache.Message{MessageID: 1, ChatID: 42, Kind: cache.MessageText, Sent: time.Now()},
	})

	if _, ok := store.Chats.GetByID(42); !ok {
		t.Fatal("chat 42 not fetched for message pushed after startup")
	}
}

func TestStartTwiceFails(t *testing.T) {
	d, _, _, tr, _ := testDispatcher(t)
	startDispatcher(t, d, tr)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while channels are open")
	}
}

func TestStartCanceled(t *testing.T) {
	d, _, _, tr, _ := testDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	tr.waitOpen(t, len(transport.Channels()))

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Start() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}

	for _, ch := range transport.Channels() {
		if got := d.Machine(ch).Current(); got != Closed {
			t.Errorf("channel %s state = %s, want %s", ch, got, Closed)
		}
	}
}

func TestStopUnblocksPendingStart(t *testing.T) {
	d, _, _, tr, _ := testDispatcher(t)

	done := make(chan error, 1)
	go func() { done <- d.Start(context.Background()) }()
	tr.waitOpen(t, len(transport.Channels()))

	// No acks arrive; Stop must fail the pending Start instead of
	// leaving it waiting forever.
	d.Stop()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Start() = nil after Stop closed every channel")
		}
	case <-time.After(time.Second):
		t.Fatal("Start still pending after Stop")
	}
	for _, ch := range transport.Channels() {
		if got := d.Machine(ch).Current(); got != Closed {
			t.Errorf("channel %s state = %s, want %s", ch, got, Closed)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	d, _, _, tr, _ := testDispatcher(t)
	startDispatcher(t, d, tr)

	d.Stop()
	d.Stop()

	for _, ch := range transport.Channels() {
		if got := d.Machine(ch).Current(); got != Closed {
			t.Errorf("channel %s state = %s, want %s", ch, got, Closed)
		}
		if got := tr.closeCount(ch); got != 1 {
			t.Errorf("channel %s closed %d times, want 1", ch, got)
		}
	}
}

func TestTransportErrorClosesChannel(t *testing.T) {
	d, _, _, tr, b := testDispatcher(t)
	startDispatcher(t, d, tr)

	events, unsub := b.Subscribe("net.", 4)
	defer unsub()

	tr.fail(t, transport.ChannelChats, &transport.ConnectionError{Err: errors.New("eof")})

	if got := d.Machine(transport.ChannelChats).Current(); got != Closed {
		t.Errorf("chats channel state = %s, want %s", got, Closed)
	}
	if got := d.Machine(transport.ChannelMessages).Current(); got != Open {
		t.Errorf("messages channel state = %s, want %s", got, Open)
	}
	select {
	case evt := <-events:
		if evt.Kind != bus.KindNetConnectionError {
			t.Errorf("event kind = %s, want %s", evt.Kind, bus.KindNetConnectionError)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection error event")
	}
}

func TestUpdatedAccountOnlyForSelf(t *testing.T) {
	d, store, _, _, _ := testDispatcher(t)
	store.SetSelf(1)
	ctx := context.Background()

	d.handle(ctx, transport.ChannelAccounts, transport.UpdatedAccount{
		Account: cache.Account{UserID: 1, Username: "me"},
	})
	d.handle(ctx, transport.ChannelAccounts, transport.UpdatedAccount{
		Account: cache.Account{UserID: 2, Username: "other"},
	})

	if !store.Accounts.Has(1) {
		t.Error("own profile update not applied")
	}
	if store.Accounts.Has(2) {
		t.Error("foreign profile update should be ignored")
	}
}

func TestDeletedAccountCascade(t *testing.T) {
	d, store, _, _, b := testDispatcher(t)
	store.SetSelf(1)

	user := cache.Account{UserID: 7, Username: "bob"}
	store.Accounts.UpsertOne(user)
	store.Contacts.UpsertOne(user)
	store.Blocked.UpsertOne(user)
	store.Online.UpsertOne(cache.OnlineStatus{UserID: 7, IsOnline: true})
	store.Typing.UpsertOne(cache.TypingStatus{UserID: 7, ChatID: 3, IsTyping: true})
	store.Typing.UpsertOne(cache.TypingStatus{UserID: 8, ChatID: 3, IsTyping: true})
	store.Chats.UpsertOne(cache.Chat{
		ChatID: 3,
		Kind:   cache.ChatPrivate,
		User:   &cache.AccountPreview{UserID: 7, Username: "bob"},
	})

	events, unsub := b.Subscribe("", 16)
	defer unsub()

	d.handle(context.Background(), transport.ChannelAccounts, transport.DeletedAccount{UserID: 7})

	if store.Accounts.Has(7) || store.Contacts.Has(7) || store.Blocked.Has(7) {
		t.Error("account entries survived deletion")
	}
	if store.Online.Has(7) {
		t.Error("online status survived deletion")
	}
	if store.Typing.Has(cache.TypingKey{UserID: 7, ChatID: 3}) {
		t.Error("typing status survived deletion")
	}
	if !store.Typing.Has(cache.TypingKey{UserID: 8, ChatID: 3}) {
		t.Error("unrelated typing status was removed")
	}
	if store.Chats.Has(3) {
		t.Error("private chat survived deletion")
	}

	kinds := make(map[string]bool)
	for len(events) > 0 {
		kinds[(<-events).Kind] = true
	}
	if !kinds[bus.KindChatDeleted] || !kinds[bus.KindAccountDeleted] {
		t.Errorf("published kinds = %v, want chat.deleted and account.deleted", kinds)
	}
}

func TestUpdatedGroupChatMergesFields(t *testing.T) {
	d, store, _, _, _ := testDispatcher(t)
	store.SetSelf(1)
	store.Chats.UpsertOne(cache.Chat{
		ChatID:      5,
		Kind:        cache.ChatGroup,
		Title:       "old title",
		Description: "desc",
		UserIDs:     []int32{1, 2, 3},
		AdminIDs:    []int32{1},
	})

	title := "new title"
	d.handle(context.Background(), transport.ChannelChats, transport.UpdatedGroupChat{
		ChatID:         5,
		Title:          &title,
		NewUserIDs:     []int32{4},
		RemovedUserIDs: []int32{2},
		AdminIDs:       []int32{1, 3},
	})

	chat, ok := store.Chats.GetByID(5)
	if !ok {
		t.Fatal("chat missing after update")
	}
	if chat.Title != "new title" {
		t.Errorf("Title = %q, want %q", chat.Title, "new title")
	}
	if chat.Description != "desc" {
		t.Errorf("Description = %q, nil field must stay unchanged", chat.Description)
	}
	if want := []int32{1, 3, 4}; !slices.Equal(chat.UserIDs, want) {
		t.Errorf("UserIDs = %v, want %v", chat.UserIDs, want)
	}
	if want := []int32{1, 3}; !slices.Equal(chat.AdminIDs, want) {
		t.Errorf("AdminIDs = %v, want %v", chat.AdminIDs, want)
	}
}

func TestUpdatedGroupChatRemovingSelf(t *testing.T) {
	d, store, _, _, b := testDispatcher(t)
	store.SetSelf(1)
	store.Chats.UpsertOne(cache.Chat{ChatID: 5, Kind: cache.ChatGroup, UserIDs: []int32{1, 2}})

	events, unsub := b.Subscribe("chat.", 4)
	defer unsub()

	d.handle(context.Background(), transport.ChannelChats, transport.UpdatedGroupChat{
		ChatID:         5,
		RemovedUserIDs: []int32{1},
	})

	if store.Chats.Has(5) {
		t.Error("chat should be removed when the viewer is removed")
	}
	select {
	case evt := <-events:
		if evt.Kind != bus.KindChatLeft {
			t.Errorf("event kind = %s, want %s", evt.Kind, bus.KindChatLeft)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chat.left event")
	}
}

func TestUpdatedGroupChatUncachedFetches(t *testing.T) {
	d, store, api, _, _ := testDispatcher(t)
	store.SetSelf(1)
	api.chatFn = func(_ context.Context, chatID int32) (*cache.Chat, error) {
		return &cache.Chat{ChatID: chatID, Kind: cache.ChatGroup, Title: "fetched"}, nil
	}

	title := "pushed"
	d.handle(context.Background(), transport.ChannelChats, transport.UpdatedGroupChat{ChatID: 9, Title: &title})

	chat, ok := store.Chats.GetByID(9)
	if !ok {
		t.Fatal("chat not fetched on update of uncached chat")
	}
	if chat.Title != "fetched" {
		t.Errorf("Title = %q, the fetched chat must win over the partial event", chat.Title)
	}
}

func TestNewMessageAttachesAsLastMessage(t *testing.T) {
	d, store, api, _, _ := testDispatcher(t)
	api.chatFn = func(_ context.Context, chatID int32) (*cache.Chat, error) {
		return &cache.Chat{ChatID: chatID, Kind: cache.ChatGroup}, nil
	}
	ctx := context.Background()

	sent := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d.handle(ctx, transport.ChannelMessages, transport.NewMessage{
		Message: cache.Message{MessageID: 100, ChatID: 4, Kind: cache.MessageText, Text: "hi", Sent: sent},
	})

	chat, ok := store.Chats.GetByID(4)
	if !ok {
		t.Fatal("chat not fetched for incoming message")
	}
	if chat.LastMessage == nil || chat.LastMessage.MessageID != 100 {
		t.Fatalf("LastMessage = %+v, want message 100", chat.LastMessage)
	}

	// An out-of-order older message must not displace the newer one.
	d.handle(ctx, transport.ChannelMessages, transport.NewMessage{
		Message: cache.Message{MessageID: 99, ChatID: 4, Kind: cache.MessageText, Sent: sent.Add(-time.Minute)},
	})
	chat, _ = store.Chats.GetByID(4)
	if chat.LastMessage.MessageID != 100 {
		t.Errorf("LastMessage = %d, older message displaced newer", chat.LastMessage.MessageID)
	}
}

func TestDeletedMessageRefetchesChat(t *testing.T) {
	d, store, api, _, _ := testDispatcher(t)
	store.Chats.UpsertOne(cache.Chat{
		ChatID:      4,
		Kind:        cache.ChatGroup,
		LastMessage: &cache.Message{MessageID: 100, ChatID: 4},
	})
	api.chatFn = func(_ context.Context, chatID int32) (*cache.Chat, error) {
		return &cache.Chat{
			ChatID:      chatID,
			Kind:        cache.ChatGroup,
			LastMessage: &cache.Message{MessageID: 99, ChatID: chatID},
		}, nil
	}

	d.handle(context.Background(), transport.ChannelMessages, transport.DeletedMessage{ChatID: 4, MessageID: 100})

	chat, _ := store.Chats.GetByID(4)
	if chat.LastMessage == nil || chat.LastMessage.MessageID != 99 {
		t.Fatalf("LastMessage = %+v, want refetched message 99", chat.LastMessage)
	}
	if got := api.chatCallCount(); got != 1 {
		t.Errorf("chat fetches = %d, want 1", got)
	}
}

func TestDeletedMessageNotLastIsCheap(t *testing.T) {
	d, store, api, _, _ := testDispatcher(t)
	store.Chats.UpsertOne(cache.Chat{
		ChatID:      4,
		Kind:        cache.ChatGroup,
		LastMessage: &cache.Message{MessageID: 100, ChatID: 4},
	})

	d.handle(context.Background(), transport.ChannelMessages, transport.DeletedMessage{ChatID: 4, MessageID: 55})

	chat, _ := store.Chats.GetByID(4)
	if chat.LastMessage == nil || chat.LastMessage.MessageID != 100 {
		t.Errorf("LastMessage = %+v, must stay untouched", chat.LastMessage)
	}
	if got := api.chatCallCount(); got != 0 {
		t.Errorf("chat fetches = %d, want 0", got)
	}
}

func TestUpdatedPollMessageReplacesPoll(t *testing.T) {
	d, store, _, _, _ := testDispatcher(t)
	store.Chats.UpsertOne(cache.Chat{
		ChatID: 4,
		Kind:   cache.ChatGroup,
		LastMessage: &cache.Message{
			MessageID: 100,
			ChatID:    4,
			Kind:      cache.MessagePoll,
			Poll:      &cache.Poll{Question: "q", Options: []cache.PollOption{{Option: "a"}}},
		},
	})

	d.handle(context.Background(), transport.ChannelMessages, transport.UpdatedPollMessage{
		ChatID:    4,
		MessageID: 100,
		Poll: cache.Poll{
			Question: "q",
			Options:  []cache.PollOption{{Option: "a", VoterIDs: []int32{7}}},
		},
	})

	chat, _ := store.Chats.GetByID(4)
	got := chat.LastMessage.Poll.Options[0].VoterIDs
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("VoterIDs = %v, want [7]", got)
	}
}

func TestUserChatMessagesRemoval(t *testing.T) {
	d, store, api, _, _ := testDispatcher(t)
	store.Chats.UpsertOne(cache.Chat{
		ChatID:      4,
		Kind:        cache.ChatGroup,
		LastMessage: &cache.Message{MessageID: 100, ChatID: 4, SenderID: 7},
	})
	api.chatFn = func(_ context.Context, chatID int32) (*cache.Chat, error) {
		return &cache.Chat{ChatID: chatID, Kind: cache.ChatGroup}, nil
	}

	d.handle(context.Background(), transport.ChannelMessages, transport.UserChatMessagesRemoval{ChatID: 4, UserID: 7})

	chat, _ := store.Chats.GetByID(4)
	if chat.LastMessage != nil {
		t.Errorf("LastMessage = %+v, want nil after sender's messages removed", chat.LastMessage)
	}
}

func TestPresenceEvents(t *testing.T) {
	d, store, _, _, _ := testDispatcher(t)
	ctx := context.Background()

	d.handle(ctx, transport.ChannelOnline, transport.OnlineStatusEvent{
		Status: cache.OnlineStatus{UserID: 7, IsOnline: true},
	})
	d.handle(ctx, transport.ChannelTyping, transport.TypingStatusEvent{
		Status: cache.TypingStatus{UserID: 7, ChatID: 4, IsTyping: true},
	})

	if status, ok := store.Online.GetByID(7); !ok || !status.IsOnline {
		t.Errorf("online status = %+v, %v", status, ok)
	}
	if status, ok := store.Typing.GetByID(cache.TypingKey{UserID: 7, ChatID: 4}); !ok || !status.IsTyping {
		t.Errorf("typing status = %+v, %v", status, ok)
	}
}

func TestContactAndBlockEvents(t *testing.T) {
	d, store, _, _, _ := testDispatcher(t)
	ctx := context.Background()

	d.handle(ctx, transport.ChannelAccounts, transport.NewContact{Account: cache.Account{UserID: 7}})
	d.handle(ctx, transport.ChannelAccounts, transport.BlockedAccount{Account: cache.Account{UserID: 7}})
	if !store.Contacts.Has(7) || !store.Blocked.Has(7) {
		t.Fatal("contact or block event not applied")
	}

	d.handle(ctx, transport.ChannelAccounts, transport.DeletedContact{UserID: 7})
	d.handle(ctx, transport.ChannelAccounts, transport.UnblockedAccount{UserID: 7})
	if store.Contacts.Has(7) || store.Blocked.Has(7) {
		t.Fatal("contact or block removal not applied")
	}
}
