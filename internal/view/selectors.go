// Package view derives read-only projections over the entity store for the
// UI collaborator. Selectors never mutate the store and never touch the
// network; callers re-read them when the bus signals a relevant change.
package view

import (
	"sync"

	"github.com/matheus3301/parley/internal/cache"
)

// Selectors answers the read queries the UI renders from. Safe for
// concurrent use.
type Selectors struct {
	store *cache.Store

	mu        sync.Mutex
	chatsMemo chatsMemo
}

// chatsMemo caches the sorted, filtered chat list. Cache versions make the
// memo exact: the same versions always yield the same list.
type chatsMemo struct {
	chatsVersion   uint64
	blockedVersion uint64
	valid          bool
	result         []cache.Chat
}

// NewSelectors creates selectors reading from store.
func NewSelectors(store *cache.Store) *Selectors {
	return &Selectors{store: store}
}

// Chats returns the chat list for the sidebar: ordered by last-message
// recency, private chats with blocked counterparts filtered out. The result
// is memoized until the chats or blocked cache changes; callers must not
// mutate it.
func (s *Selectors) Chats() []cache.Chat {
	chatsV := s.store.Chats.Version()
	blockedV := s.store.Blocked.Version()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatsMemo.valid && s.chatsMemo.chatsVersion == chatsV && s.chatsMemo.blockedVersion == blockedV {
		return s.chatsMemo.result
	}

	all := s.store.ChatsByRecency()
	result := make([]cache.Chat, 0, len(all))
	for _, c := range all {
		if c.Kind == cache.ChatPrivate && c.User != nil && s.store.Blocked.Has(c.User.UserID) {
			continue
		}
		result = append(result, c)
	}

	s.chatsMemo = chatsMemo{
		chatsVersion:   chatsV,
		blockedVersion: blockedV,
		valid:          true,
		result:         result,
	}
	return result
}

// IsTyping reports whether userID is currently typing in chatID.
func (s *Selectors) IsTyping(userID, chatID int32) bool {
	status, ok := s.store.Typing.GetByID(cache.TypingKey{UserID: userID, ChatID: chatID})
	return ok && status.IsTyping
}

// LastMessage returns a chat's most recent message, if any.
func (s *Selectors) LastMessage(chatID int32) (cache.Message, bool) {
	chat, ok := s.store.Chats.GetByID(chatID)
	if !ok || chat.LastMessage == nil {
		return cache.Message{}, false
	}
	return *chat.LastMessage, true
}

// IsLastMessageFromBlocked reports whether a chat's latest message was sent
// by a blocked user, so the UI can show a placeholder instead.
func (s *Selectors) IsLastMessageFromBlocked(chatID int32) bool {
	chat, ok := s.store.Chats.GetByID(chatID)
	if !ok || chat.LastMessage == nil {
		return false
	}
	return s.store.Blocked.Has(chat.LastMessage.SenderID)
}

// Pic returns the picture entry for an account or group chat. Resources
// inside stay ResourceNotFetched until a fetch settles, letting the UI tell
// "not loaded yet" from "has no picture".
func (s *Selectors) Pic(key cache.PicKey) (cache.Pic, bool) {
	return s.store.Pics.GetByID(key)
}

// MessageFile returns the fetched attachment of a media message, if any.
func (s *Selectors) MessageFile(messageID int32) (cache.FileAttachment, bool) {
	return s.store.Files.GetByID(messageID)
}

// OnlineStatus returns a user's presence, if known.
func (s *Selectors) OnlineStatus(userID int32) (cache.OnlineStatus, bool) {
	return s.store.Online.GetByID(userID)
}

// Contact reports whether userID is one of the viewer's saved contacts.
func (s *Selectors) Contact(userID int32) bool {
	return s.store.Contacts.Has(userID)
}

// Blocked reports whether the viewer has blocked userID.
func (s *Selectors) Blocked(userID int32) bool {
	return s.store.Blocked.Has(userID)
}

// Self returns the viewer's mirrored profile, if fetched.
func (s *Selectors) Self() (cache.Account, bool) {
	return s.store.Accounts.GetByID(s.store.Self())
}
