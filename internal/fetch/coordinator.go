// Package fetch implements the coordinator that wraps the entity store
// with deduplicated load operations: at most one in-flight fetch per key,
// explicit fetch intents, and tri-state guards for whole-collection loads.
package fetch

import (
	"context"
	"fmt"

	"github.com/matheus3301/parley/internal/blob"
	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/cache"
	"github.com/matheus3301/parley/internal/page"
	"github.com/matheus3301/parley/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const searchPageSize = 10

// API is the query surface the coordinator consumes from the transport.
// A nil entity with a nil error means the server said the entity no longer
// exists; the cache is left untouched in that case.
type API interface {
	Account(ctx context.Context, userID int32) (*cache.Account, error)
	Chats(ctx context.Context) ([]cache.Chat, error)
	Chat(ctx context.Context, chatID int32) (*cache.Chat, error)
	Contacts(ctx context.Context) ([]cache.Account, error)
	BlockedUsers(ctx context.Context) ([]cache.Account, error)
	OnlineStatus(ctx context.Context, userID int32) (*cache.OnlineStatus, error)
	TypingStatuses(ctx context.Context) ([]cache.TypingStatus, error)
	SearchUsers(ctx context.Context, query string, first int32, after *string) (page.Page[cache.AccountPreview], error)
	SearchPublicChats(ctx context.Context, query string, first int32, after *string) (page.Page[cache.Chat], error)
	ProfilePic(ctx context.Context, userID int32, size transport.PicSize) (*transport.Blob, error)
	GroupChatPic(ctx context.Context, chatID int32, size transport.PicSize) (*transport.Blob, error)
	MessageFile(ctx context.Context, messageID int32) (*transport.Blob, error)
}

// Intent says when a point fetch should actually hit the network. The
// default is to fill a cache miss; RefreshOnly re-reads an entity that is
// already cached and does nothing for unknown keys.
type Intent int

const (
	IfMissing Intent = iota
	RefreshOnly
)

// Policy receives failures the coordinator absorbed at the network
// boundary. OnUnauthorized defaults to nothing beyond the bus notice; the
// daemon installs a sign-out hook.
type Policy struct {
	OnUnauthorized func()
}

// Coordinator is the only fetch path into the store. Safe for concurrent
// use; redundant calls for the same key are collapsed into one request.
type Coordinator struct {
	store  *cache.Store
	api    API
	blobs  *blob.Store
	bus    *bus.Bus
	logger *zap.Logger
	policy Policy
	flight singleflight.Group
}

// NewCoordinator creates a coordinator writing into store.
func NewCoordinator(store *cache.Store, api API, blobs *blob.Store, b *bus.Bus, logger *zap.Logger, policy Policy) *Coordinator {
	return &Coordinator{
		store:  store,
		api:    api,
		blobs:  blobs,
		bus:    b,
		logger: logger,
		policy: policy,
	}
}

// fail routes a network-boundary failure per the error policy. Nothing is
// retried here; the in-flight marker has already been cleared, so a later
// manual retry is possible.
func (c *Coordinator) fail(op string, err error) {
	switch {
	case transport.IsUnauthorized(err):
		c.logger.Warn("unauthorized", zap.String("op", op))
		c.bus.Emit(bus.KindSessionUnauthorized, nil)
		if c.policy.OnUnauthorized != nil {
			c.policy.OnUnauthorized()
		}
	case transport.IsConnectionError(err):
		c.logger.Warn("connection error", zap.String("op", op), zap.Error(err))
		c.bus.Emit(bus.KindNetConnectionError, err.Error())
	default:
		c.logger.Error("server error", zap.String("op", op), zap.Error(err))
		c.bus.Emit(bus.KindNetServerError, err.Error())
	}
}

// FetchAccount loads one account into the accounts cache.
func (c *Coordinator) FetchAccount(ctx context.Context, userID int32, intent Intent) *cache.Account {
	if cached, ok := c.store.Accounts.GetByID(userID); ok && intent == IfMissing {
		return &cached
	} else if !ok && intent == RefreshOnly {
		return nil
	}

	v, err, _ := c.flight.Do(fmt.Sprintf("account:%d", userID), func() (any, error) {
		return c.api.Account(ctx, userID)
	})
	if err != nil {
		c.fail("fetch account", err)
		return nil
	}
	acct, _ := v.(*cache.Account)
	if acct == nil {
		// Server says the account is gone; deletion is the caller's call.
		return nil
	}
	c.store.Accounts.UpsertOne(*acct)
	c.bus.Emit(bus.KindAccountUpserted, acct.UserID)
	return acct
}

// FetchChat loads one chat into the chats cache. Returns nil when the
// server no longer knows the chat.
func (c *Coordinator) FetchChat(ctx context.Context, chatID int32, intent Intent) *cache.Chat {
	if cached, ok := c.store.Chats.GetByID(chatID); ok && intent == IfMissing {
		return &cached
	} else if !ok && intent == RefreshOnly {
		return nil
	}

	v, err, _ := c.flight.Do(fmt.Sprintf("chat:%d", chatID), func() (any, error) {
		return c.api.Chat(ctx, chatID)
	})
	if err != nil {
		c.fail("fetch chat", err)
		return nil
	}
	chat, _ := v.(*cache.Chat)
	if chat == nil {
		return nil
	}
	c.store.Chats.UpsertOne(*chat)
	c.bus.Emit(bus.KindChatUpserted, chat.ChatID)
	return chat
}

// FetchChats loads the whole chat list, guarded by the tri-state flag.
// Returns false when the fetch was short-circuited or failed.
func (c *Coordinator) FetchChats(ctx context.Context) bool {
	if !c.store.ChatsFlag.Begin() {
		return false
	}
	chats, err := c.api.Chats(ctx)
	if err != nil {
		c.store.ChatsFlag.Finish(false)
		c.fail("fetch chats", err)
		return false
	}
	c.store.Chats.UpsertMany(chats)
	c.store.ChatsFlag.Finish(true)
	c.bus.Emit(bus.KindChatUpserted, nil)
	return true
}

// FetchContacts loads the viewer's contacts, guarded by the tri-state flag.
func (c *Coordinator) FetchContacts(ctx context.Context) bool {
	if !c.store.ContactsFlag.Begin() {
		return false
	}
	contacts, err := c.api.Contacts(ctx)
	if err != nil {
		c.store.ContactsFlag.Finish(false)
		c.fail("fetch contacts", err)
		return false
	}
	c.store.Contacts.UpsertMany(contacts)
	c.store.ContactsFlag.Finish(true)
	c.bus.Emit(bus.KindAccountUpserted, nil)
	return true
}

// FetchBlockedUsers loads the viewer's block list, flag-guarded.
func (c *Coordinator) FetchBlockedUsers(ctx context.Context) bool {
	if !c.store.BlockedFlag.Begin() {
		return false
	}
	blocked, err := c.api.BlockedUsers(ctx)
	if err != nil {
		c.store.BlockedFlag.Finish(false)
		c.fail("fetch blocked users", err)
		return false
	}
	c.store.Blocked.UpsertMany(blocked)
	c.store.BlockedFlag.Finish(true)
	c.bus.Emit(bus.KindAccountUpserted, nil)
	return true
}

// FetchTypingStatuses loads all visible typing statuses, flag-guarded.
func (c *Coordinator) FetchTypingStatuses(ctx context.Context) bool {
	if !c.store.TypingFlag.Begin() {
		return false
	}
	statuses, err := c.api.TypingStatuses(ctx)
	if err != nil {
		c.store.TypingFlag.Finish(false)
		c.fail("fetch typing statuses", err)
		return false
	}
	c.store.Typing.UpsertMany(statuses)
	c.store.TypingFlag.Finish(true)
	c.bus.Emit(bus.KindTypingChanged, nil)
	return true
}

// FetchOnlineStatus loads one user's presence.
func (c *Coordinator) FetchOnlineStatus(ctx context.Context, userID int32, intent Intent) *cache.OnlineStatus {
	if cached, ok := c.store.Online.GetByID(userID); ok && intent == IfMissing {
		return &cached
	} else if !ok && intent == RefreshOnly {
		return nil
	}

	v, err, _ := c.flight.Do(fmt.Sprintf("online:%d", userID), func() (any, error) {
		return c.api.OnlineStatus(ctx, userID)
	})
	if err != nil {
		c.fail("fetch online status", err)
		return nil
	}
	status, _ := v.(*cache.OnlineStatus)
	if status == nil {
		return nil
	}
	c.store.Online.UpsertOne(*status)
	c.bus.Emit(bus.KindPresenceChanged, status.UserID)
	return status
}

// FetchPic loads both renditions of a profile or group chat picture into
// the pic cache, converting fetched blobs into local handles. A typed
// nonexistent-user/chat failure is recorded on the cache entry for the UI
// to react to.
func (c *Coordinator) FetchPic(ctx context.Context, key cache.PicKey, intent Intent) {
	cached, ok := c.store.Pics.GetByID(key)
	fetched := ok && cached.Thumbnail.State != cache.ResourceNotFetched
	if fetched && intent == IfMissing {
		return
	}
	if !ok && intent == RefreshOnly {
		return
	}

	_, _, _ = c.flight.Do(fmt.Sprintf("pic:%s:%d", key.Entity, key.ID), func() (any, error) {
		pic := cache.Pic{Key: key}

		thumb, err := c.fetchPicBlob(ctx, key, transport.PicThumbnail)
		if err != nil {
			c.recordPicError(key, err)
			return nil, nil
		}
		orig, err := c.fetchPicBlob(ctx, key, transport.PicOriginal)
		if err != nil {
			c.recordPicError(key, err)
			return nil, nil
		}

		pic.Thumbnail, err = c.blobToResource(key, transport.PicThumbnail, thumb)
		if err != nil {
			c.logger.Error("store pic blob", zap.Error(err))
			return nil, nil
		}
		pic.Original, err = c.blobToResource(key, transport.PicOriginal, orig)
		if err != nil {
			c.logger.Error("store pic blob", zap.Error(err))
			return nil, nil
		}

		c.store.Pics.UpsertOne(pic)
		c.bus.Emit(bus.KindPicFetched, key)
		return nil, nil
	})
}

func (c *Coordinator) fetchPicBlob(ctx context.Context, key cache.PicKey, size transport.PicSize) (*transport.Blob, error) {
	if key.Entity == cache.PicEntityAccount {
		return c.api.ProfilePic(ctx, key.ID, size)
	}
	return c.api.GroupChatPic(ctx, key.ID, size)
}

func (c *Coordinator) recordPicError(key cache.PicKey, err error) {
	if err == transport.ErrNonexistentUser || err == transport.ErrNonexistentChat {
		c.store.Pics.UpsertOne(cache.Pic{Key: key, Err: err})
		c.bus.Emit(bus.KindPicFetched, key)
		return
	}
	c.fail("fetch pic", err)
}

func (c *Coordinator) blobToResource(key cache.PicKey, size transport.PicSize, b *transport.Blob) (cache.Resource, error) {
	if b == nil {
		return cache.Absent(), nil
	}
	handle, err := c.blobs.Put(fmt.Sprintf("%s-pic-%s-%d", key.Entity, size, key.ID), b.Filename, b.Data)
	if err != nil {
		return cache.Resource{}, err
	}
	return cache.Present(handle), nil
}

// FetchMessageFile loads the binary of a media message into the file
// cache, addressed by a local handle.
func (c *Coordinator) FetchMessageFile(ctx context.Context, messageID int32, intent Intent) {
	cached, ok := c.store.Files.GetByID(messageID)
	fetched := ok && cached.Resource.State != cache.ResourceNotFetched
	if fetched && intent == IfMissing {
		return
	}
	if !ok && intent == RefreshOnly {
		return
	}

	_, _, _ = c.flight.Do(fmt.Sprintf("file:%d", messageID), func() (any, error) {
		b, err := c.api.MessageFile(ctx, messageID)
		if err != nil {
			c.fail("fetch message file", err)
			return nil, nil
		}
		att := cache.FileAttachment{MessageID: messageID}
		if b == nil {
			att.Resource = cache.Absent()
		} else {
			handle, err := c.blobs.Put(fmt.Sprintf("message-file-%d", messageID), b.Filename, b.Data)
			if err != nil {
				c.logger.Error("store message file", zap.Error(err))
				return nil, nil
			}
			att.Filename = b.Filename
			att.Resource = cache.Present(handle)
		}
		c.store.Files.UpsertOne(att)
		c.bus.Emit(bus.KindFileFetched, messageID)
		return nil, nil
	})
}

// RemoveMessageFile drops a deleted message's attachment from the cache
// and its blob from disk.
func (c *Coordinator) RemoveMessageFile(messageID int32) {
	c.store.Files.RemoveOne(messageID)
	if err := c.blobs.Remove(fmt.Sprintf("message-file-%d", messageID)); err != nil {
		c.logger.Warn("remove message file blob", zap.Error(err))
	}
}

// RemovePic drops a picture from the cache and its blobs from disk.
func (c *Coordinator) RemovePic(key cache.PicKey) {
	c.store.Pics.RemoveOne(key)
	for _, size := range []transport.PicSize{transport.PicThumbnail, transport.PicOriginal} {
		if err := c.blobs.Remove(fmt.Sprintf("%s-pic-%s-%d", key.Entity, size, key.ID)); err != nil {
			c.logger.Warn("remove pic blob", zap.Error(err))
		}
	}
}

// SearchUsers issues a new user search, replacing the previous window.
func (c *Coordinator) SearchUsers(ctx context.Context, query string) {
	p, err := c.api.SearchUsers(ctx, query, searchPageSize, nil)
	if err != nil {
		c.fail("search users", err)
		return
	}
	c.store.SearchedUsers.Replace(query, p)
}

// LoadMoreUsers appends the next page of the active user search. No-ops
// when no search is active or the window is exhausted.
func (c *Coordinator) LoadMoreUsers(ctx context.Context) {
	query, active := c.store.SearchedUsers.Query()
	if !active || !c.store.SearchedUsers.HasNextPage() {
		return
	}
	_, _, _ = c.flight.Do("search-users:more", func() (any, error) {
		var after *string
		if cur, ok := c.store.SearchedUsers.LastCursor(); ok {
			after = &cur
		}
		p, err := c.api.SearchUsers(ctx, query, searchPageSize, after)
		if err != nil {
			c.fail("load more users", err)
			return nil, nil
		}
		if err := c.store.SearchedUsers.AppendNext(p); err != nil {
			c.logger.Error("append user search page", zap.Error(err))
		}
		return nil, nil
	})
}

// SearchPublicChats issues a new public chat search, replacing the window.
func (c *Coordinator) SearchPublicChats(ctx context.Context, query string) {
	p, err := c.api.SearchPublicChats(ctx, query, searchPageSize, nil)
	if err != nil {
		c.fail("search public chats", err)
		return
	}
	c.store.SearchedChats.Replace(query, p)
}

// LoadMorePublicChats appends the next page of the active chat search.
func (c *Coordinator) LoadMorePublicChats(ctx context.Context) {
	query, active := c.store.SearchedChats.Query()
	if !active || !c.store.SearchedChats.HasNextPage() {
		return
	}
	_, _, _ = c.flight.Do("search-chats:more", func() (any, error) {
		var after *string
		if cur, ok := c.store.SearchedChats.LastCursor(); ok {
			after = &cur
		}
		p, err := c.api.SearchPublicChats(ctx, query, searchPageSize, after)
		if err != nil {
			c.fail("load more public chats", err)
			return nil, nil
		}
		if err := c.store.SearchedChats.AppendNext(p); err != nil {
			c.logger.Error("append chat search page", zap.Error(err))
		}
		return nil, nil
	})
}
