package cache

import (
	"sort"
	"sync"

	"github.com/matheus3301/parley/internal/page"
)

// Store aggregates every entity cache, the collection fetch flags, and the
// two search trackers. It is constructed once and handed by reference to
// the coordinator and the dispatcher, the only components allowed to
// mutate it.
type Store struct {
	Accounts *Cache[int32, Account]
	Contacts *Cache[int32, Account]
	Blocked  *Cache[int32, Account]
	Chats    *Cache[int32, Chat]
	Online   *Cache[int32, OnlineStatus]
	Typing   *Cache[TypingKey, TypingStatus]
	Pics     *Cache[PicKey, Pic]
	Files    *Cache[int32, FileAttachment]

	ChatsFlag    Flag
	ContactsFlag Flag
	BlockedFlag  Flag
	TypingFlag   Flag

	SearchedUsers *page.Tracker[AccountPreview]
	SearchedChats *page.Tracker[Chat]

	mu   sync.RWMutex
	self int32
}

// NewStore creates an empty store.
func NewStore() *Store {
	accountKey := func(a Account) int32 { return a.UserID }
	return &Store{
		Accounts: New(accountKey),
		Contacts: New(accountKey),
		Blocked:  New(accountKey),
		Chats:    New(func(c Chat) int32 { return c.ChatID }),
		Online:   New(func(o OnlineStatus) int32 { return o.UserID }),
		Typing:   New(TypingStatus.Key),
		Pics:     New(func(p Pic) PicKey { return p.Key }),
		Files:    New(func(f FileAttachment) int32 { return f.MessageID }),

		SearchedUsers: page.NewTracker[AccountPreview](),
		SearchedChats: page.NewTracker[Chat](),
	}
}

// SetSelf records the signed-in user's ID. The accounts cache is reserved
// for this user's mirrored profile plus explicitly fetched accounts.
func (s *Store) SetSelf(userID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = userID
}

// Self returns the signed-in user's ID, zero before sign-in.
func (s *Store) Self() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// ChatsByRecency returns all chats ordered by last-message time descending.
// Chats without a message sort last; ties keep insertion order.
func (s *Store) ChatsByRecency() []Chat {
	chats := s.Chats.All()
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i].LastMessage, chats[j].LastMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Sent.After(b.Sent)
		}
	})
	return chats
}

// PrivateChatWith returns the private chat whose counterpart is userID.
func (s *Store) PrivateChatWith(userID int32) (Chat, bool) {
	for _, c := range s.Chats.All() {
		if c.Kind == ChatPrivate && c.User != nil && c.User.UserID == userID {
			return c, true
		}
	}
	return Chat{}, false
}
