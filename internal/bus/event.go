package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kind namespaces. Subscribers filter by prefix, so "chat." matches
// every chat-related kind.
const (
	KindAccountUpserted = "account.upserted"
	KindAccountDeleted  = "account.deleted"

	KindChatUpserted = "chat.upserted"
	KindChatDeleted  = "chat.deleted"
	KindChatLeft     = "chat.left"

	KindMessageUpserted = "message.upserted"
	KindMessageDeleted  = "message.deleted"

	KindPresenceChanged = "presence.changed"
	KindTypingChanged   = "typing.changed"
	KindPicFetched      = "pic.fetched"
	KindFileFetched     = "file.fetched"

	KindSubsStatusChanged = "subs.status_changed"

	KindNetConnectionError = "net.connection_error"
	KindNetServerError     = "net.server_error"

	KindSessionUnauthorized = "session.unauthorized"
)
