package cache

import "time"

// Account is a mirrored server-side user profile. The accounts cache holds
// the signed-in user's own profile plus any accounts explicitly fetched.
type Account struct {
	UserID       int32
	Username     string
	EmailAddress string
	FirstName    string
	LastName     string
	Bio          string
}

// AccountPreview is the abbreviated account embedded in private chats and
// search edges.
type AccountPreview struct {
	UserID   int32
	Username string
}

// ChatKind discriminates the chat union.
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
)

// Publicity controls how a group chat can be joined.
type Publicity string

const (
	PublicityNotInvitable Publicity = "NOT_INVITABLE"
	PublicityInvitable    Publicity = "INVITABLE"
	PublicityPublic       Publicity = "PUBLIC"
)

// Chat is a synced chat. User is set for private chats; the group fields
// are set for group chats. LastMessage holds only the most recent message,
// never full history.
type Chat struct {
	ChatID      int32
	Kind        ChatKind
	User        *AccountPreview
	Title       string
	Description string
	UserIDs     []int32
	AdminIDs    []int32
	IsBroadcast bool
	Publicity   Publicity
	LastMessage *Message
}

// HasUser reports whether userID participates in the chat.
func (c *Chat) HasUser(userID int32) bool {
	if c.Kind == ChatPrivate {
		return c.User != nil && c.User.UserID == userID
	}
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID administers the group chat.
func (c *Chat) IsAdmin(userID int32) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MessageKind discriminates message variants. Wire-level New*Message
// variants are normalized into one Message carrying its kind.
type MessageKind string

const (
	MessageText       MessageKind = "text"
	MessageAction     MessageKind = "action"
	MessagePic        MessageKind = "pic"
	MessagePoll       MessageKind = "poll"
	MessageAudio      MessageKind = "audio"
	MessageVideo      MessageKind = "video"
	MessageDoc        MessageKind = "doc"
	MessageGroupChatInvite MessageKind = "group_chat_invite"
)

// Message is a chat message snapshot.
type Message struct {
	MessageID      int32
	ChatID         int32
	SenderID       int32
	SenderUsername string
	Kind           MessageKind
	Text           string
	Filename       string
	Sent           time.Time
	Poll           *Poll
}

// Poll is the poll payload of a poll message.
type Poll struct {
	Question string
	Options  []PollOption
}

// PollOption is one poll answer with the IDs of users who voted for it.
type PollOption struct {
	Option   string
	VoterIDs []int32
}

// OnlineStatus is a user's presence, populated by push plus read-once fetch.
type OnlineStatus struct {
	UserID     int32
	IsOnline   bool
	LastOnline time.Time
}

// TypingKey is the composite key for typing statuses.
type TypingKey struct {
	UserID int32
	ChatID int32
}

// TypingStatus records whether a user is typing in a chat.
type TypingStatus struct {
	UserID   int32
	ChatID   int32
	IsTyping bool
}

// Key returns the composite cache key.
func (t TypingStatus) Key() TypingKey {
	return TypingKey{UserID: t.UserID, ChatID: t.ChatID}
}

// PicEntity names which entity family a picture belongs to.
type PicEntity string

const (
	PicEntityAccount   PicEntity = "account"
	PicEntityGroupChat PicEntity = "group-chat"
)

// PicKey is the composite key for profile and group chat pictures.
type PicKey struct {
	Entity PicEntity
	ID     int32
}

// ResourceState is the explicit three-state fetch status of a binary
// resource: not yet fetched, confirmed absent on the server, or fetched
// and addressable through a local handle.
type ResourceState int

const (
	ResourceNotFetched ResourceState = iota
	ResourceAbsent
	ResourcePresent
)

// Resource is a fetched binary addressed by a local file handle.
type Resource struct {
	State  ResourceState
	Handle string
}

// Present builds a fetched resource.
func Present(handle string) Resource {
	return Resource{State: ResourcePresent, Handle: handle}
}

// Absent is the confirmed-absent resource.
func Absent() Resource {
	return Resource{State: ResourceAbsent}
}

// Pic holds the two sizes of a profile or group chat picture. Err records
// a typed fetch failure (nonexistent user or chat) for the UI to react to.
type Pic struct {
	Key       PicKey
	Thumbnail Resource
	Original  Resource
	Err       error
}

// FileAttachment is the lazily fetched binary of a media message, keyed by
// the owning message ID and removed with it.
type FileAttachment struct {
	MessageID int32
	Filename  string
	Resource  Resource
}
