package transport

import "github.com/matheus3301/parley/internal/cache"

// Channel identifies one real-time event stream. Exactly one logical
// subscription is open per channel at a time.
type Channel string

const (
	ChannelAccounts Channel = "accounts"
	ChannelChats    Channel = "chats"
	ChannelMessages Channel = "messages"
	ChannelOnline   Channel = "online-statuses"
	ChannelTyping   Channel = "typing-statuses"
)

// Channels returns all five channels in a fixed order.
func Channels() []Channel {
	return []Channel{ChannelAccounts, ChannelChats, ChannelMessages, ChannelOnline, ChannelTyping}
}

// Event is one decoded server push. Each channel carries its own variants
// plus the shared SubscriptionCreated acknowledgment.
type Event interface {
	isEvent()
}

// SubscriptionCreated is the server's acknowledgment that a subscription
// is live. A channel is not considered open until it arrives.
type SubscriptionCreated struct{}

// Accounts channel variants.

// UpdatedAccount carries a full profile update.
type UpdatedAccount struct {
	Account cache.Account
}

// UpdatedProfilePic signals that a user's profile picture changed.
type UpdatedProfilePic struct {
	UserID int32
}

// BlockedAccount signals the viewer blocked a user.
type BlockedAccount struct {
	Account cache.Account
}

// UnblockedAccount signals the viewer unblocked a user.
type UnblockedAccount struct {
	UserID int32
}

// NewContact signals the viewer saved a contact.
type NewContact struct {
	Account cache.Account
}

// DeletedContact signals the viewer deleted a contact.
type DeletedContact struct {
	UserID int32
}

// DeletedAccount signals a user's account was deleted server-side.
type DeletedAccount struct {
	UserID int32
}

// Chats channel variants.

// GroupChatID announces a chat the viewer was just added to. Only the ID
// is pushed; the chat itself requires a follow-up fetch.
type GroupChatID struct {
	ChatID int32
}

// UpdatedGroupChat carries a partial group chat update. Nil fields mean
// unchanged.
type UpdatedGroupChat struct {
	ChatID         int32
	Title          *string
	Description    *string
	NewUserIDs     []int32
	RemovedUserIDs []int32
	AdminIDs       []int32
	IsBroadcast    *bool
	Publicity      *cache.Publicity
}

// UpdatedGroupChatPic signals that a group chat's picture changed.
type UpdatedGroupChatPic struct {
	ChatID int32
}

// DeletedPrivateChat signals the viewer's private chat was deleted.
type DeletedPrivateChat struct {
	ChatID int32
}

// Messages channel variants.

// NewMessage is the normalized form of every New*Message wire variant;
// the original discriminator survives as Message.Kind.
type NewMessage struct {
	Message cache.Message
}

// DeletedMessage signals a single message deletion.
type DeletedMessage struct {
	ChatID    int32
	MessageID int32
}

// UpdatedPollMessage replaces the poll payload of an existing message.
type UpdatedPollMessage struct {
	ChatID    int32
	MessageID int32
	Poll      cache.Poll
}

// UserChatMessagesRemoval signals the bulk removal of one user's messages
// from one chat.
type UserChatMessagesRemoval struct {
	ChatID int32
	UserID int32
}

// Presence channels.

// OnlineStatusEvent carries a presence change.
type OnlineStatusEvent struct {
	Status cache.OnlineStatus
}

// TypingStatusEvent carries a typing indicator change.
type TypingStatusEvent struct {
	Status cache.TypingStatus
}

func (SubscriptionCreated) isEvent()     {}
func (UpdatedAccount) isEvent()          {}
func (UpdatedProfilePic) isEvent()       {}
func (BlockedAccount) isEvent()          {}
func (UnblockedAccount) isEvent()        {}
func (NewContact) isEvent()              {}
func (DeletedContact) isEvent()          {}
func (DeletedAccount) isEvent()          {}
func (GroupChatID) isEvent()             {}
func (UpdatedGroupChat) isEvent()        {}
func (UpdatedGroupChatPic) isEvent()     {}
func (DeletedPrivateChat) isEvent()      {}
func (NewMessage) isEvent()              {}
func (DeletedMessage) isEvent()          {}
func (UpdatedPollMessage) isEvent()      {}
func (UserChatMessagesRemoval) isEvent() {}
func (OnlineStatusEvent) isEvent()       {}
func (TypingStatusEvent) isEvent()       {}
