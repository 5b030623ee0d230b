package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/parley/internal/cache"
)

// Wire shapes shared by query results and subscription pushes. The server
// discriminates unions with __typename; everything is normalized into
// cache types here so the rest of the core never sees raw JSON.

type wireAccount struct {
	UserID       int32  `json:"userId"`
	Username     string `json:"username"`
	EmailAddress string `json:"emailAddress"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Bio          string `json:"bio"`
}

func (w wireAccount) toCache() cache.Account {
	return cache.Account{
		UserID:       w.UserID,
		Username:     w.Username,
		EmailAddress: w.EmailAddress,
		FirstName:    w.FirstName,
		LastName:     w.LastName,
		Bio:          w.Bio,
	}
}

type wireAccountPreview struct {
	UserID   int32  `json:"userId"`
	Username string `json:"username"`
}

func (w wireAccountPreview) toCache() cache.AccountPreview {
	return cache.AccountPreview{UserID: w.UserID, Username: w.Username}
}

type wirePollOption struct {
	Option   string  `json:"option"`
	VoterIDs []int32 `json:"voterIdList"`
}

type wirePoll struct {
	Question string           `json:"question"`
	Options  []wirePollOption `json:"options"`
}

func (w wirePoll) toCache() cache.Poll {
	p := cache.Poll{Question: w.Question}
	for _, o := range w.Options {
		p.Options = append(p.Options, cache.PollOption{Option: o.Option, VoterIDs: o.VoterIDs})
	}
	return p
}

type wireMessage struct {
	Typename    string             `json:"__typename"`
	MessageID   int32              `json:"messageId"`
	ChatID      int32              `json:"chatId"`
	Sent        time.Time          `json:"sent"`
	Sender      wireAccountPreview `json:"sender"`
	TextMessage string             `json:"textMessage"`
	Filename    string             `json:"filename"`
	Poll        *wirePoll          `json:"poll"`
}

func (w wireMessage) toCache() cache.Message {
	m := cache.Message{
		MessageID:      w.MessageID,
		ChatID:         w.ChatID,
		SenderID:       w.Sender.UserID,
		SenderUsername: w.Sender.Username,
		Kind:           messageKind(w.Typename),
		Text:           w.TextMessage,
		Filename:       w.Filename,
		Sent:           w.Sent,
	}
	if w.Poll != nil {
		p := w.Poll.toCache()
		m.Poll = &p
	}
	return m
}

// messageKind maps a message __typename to its normalized kind. Query
// results use TextMessage etc.; subscription pushes prefix them with New.
func messageKind(typename string) cache.MessageKind {
	switch strings.TrimPrefix(typename, "New") {
	case "TextMessage":
		return cache.MessageText
	case "ActionMessage":
		return cache.MessageAction
	case "PicMessage":
		return cache.MessagePic
	case "PollMessage":
		return cache.MessagePoll
	case "AudioMessage":
		return cache.MessageAudio
	case "VideoMessage":
		return cache.MessageVideo
	case "DocMessage":
		return cache.MessageDoc
	case "GroupChatInviteMessage":
		return cache.MessageGroupChatInvite
	default:
		return cache.MessageText
	}
}

type wireEdges[T any] struct {
	Edges []struct {
		Node   T      `json:"node"`
		Cursor string `json:"cursor"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool `json:"hasNextPage"`
	} `json:"pageInfo"`
}

type wireChat struct {
	Typename    string                        `json:"__typename"`
	ChatID      int32                         `json:"chatId"`
	User        *wireAccountPreview           `json:"user"`
	Title       string                        `json:"title"`
	Description string                        `json:"description"`
	Publicity   cache.Publicity               `json:"publicity"`
	IsBroadcast bool                          `json:"isBroadcast"`
	AdminIDs    []int32                       `json:"adminIdList"`
	Users       wireEdges[wireAccountPreview] `json:"users"`
	Messages    wireEdges[wireMessage]        `json:"messages"`
}

func (w wireChat) toCache() cache.Chat {
	c := cache.Chat{
		ChatID:      w.ChatID,
		Title:       w.Title,
		Description: w.Description,
		Publicity:   w.Publicity,
		IsBroadcast: w.IsBroadcast,
		AdminIDs:    w.AdminIDs,
	}
	if w.Typename == "PrivateChat" {
		c.Kind = cache.ChatPrivate
		if w.User != nil {
			u := w.User.toCache()
			c.User = &u
		}
	} else {
		c.Kind = cache.ChatGroup
		for _, e := range w.Users.Edges {
			c.UserIDs = append(c.UserIDs, e.Node.UserID)
		}
	}
	// Only the newest message is retained, never history.
	if len(w.Messages.Edges) > 0 {
		m := w.Messages.Edges[0].Node.toCache()
		m.ChatID = w.ChatID
		c.LastMessage = &m
	}
	return c
}

type wireOnlineStatus struct {
	UserID     int32     `json:"userId"`
	IsOnline   bool      `json:"isOnline"`
	LastOnline time.Time `json:"lastOnline"`
}

func (w wireOnlineStatus) toCache() cache.OnlineStatus {
	return cache.OnlineStatus{UserID: w.UserID, IsOnline: w.IsOnline, LastOnline: w.LastOnline}
}

type wireTypingStatus struct {
	UserID   int32 `json:"userId"`
	ChatID   int32 `json:"chatId"`
	IsTyping bool  `json:"isTyping"`
}

func (w wireTypingStatus) toCache() cache.TypingStatus {
	return cache.TypingStatus{UserID: w.UserID, ChatID: w.ChatID, IsTyping: w.IsTyping}
}

// ParseEvent decodes one subscription push for the given channel into its
// typed variant.
func ParseEvent(ch Channel, raw json.RawMessage) (Event, error) {
	var head struct {
		Typename string `json:"__typename"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode event head: %w", err)
	}
	if head.Typename == "CreatedSubscription" {
		return SubscriptionCreated{}, nil
	}

	switch ch {
	case ChannelAccounts:
		return parseAccountsEvent(head.Typename, raw)
	case ChannelChats:
		return parseChatsEvent(head.Typename, raw)
	case ChannelMessages:
		return parseMessagesEvent(head.Typename, raw)
	case ChannelOnline:
		if head.Typename != "OnlineStatus" {
			return nil, unknownEvent(ch, head.Typename)
		}
		var w wireOnlineStatus
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return OnlineStatusEvent{Status: w.toCache()}, nil
	case ChannelTyping:
		if head.Typename != "TypingStatus" {
			return nil, unknownEvent(ch, head.Typename)
		}
		var w wireTypingStatus
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return TypingStatusEvent{Status: w.toCache()}, nil
	}
	return nil, fmt.Errorf("unknown channel %q", ch)
}

func parseAccountsEvent(typename string, raw json.RawMessage) (Event, error) {
	switch typename {
	case "UpdatedAccount":
		var w wireAccount
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UpdatedAccount{Account: w.toCache()}, nil
	case "UpdatedProfilePic":
		var w struct {
			UserID int32 `json:"userId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UpdatedProfilePic{UserID: w.UserID}, nil
	case "BlockedAccount":
		var w wireAccount
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return BlockedAccount{Account: w.toCache()}, nil
	case "UnblockedAccount":
		var w struct {
			UserID int32 `json:"userId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UnblockedAccount{UserID: w.UserID}, nil
	case "NewContact":
		var w wireAccount
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return NewContact{Account: w.toCache()}, nil
	case "DeletedContact":
		var w struct {
			UserID int32 `json:"userId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return DeletedContact{UserID: w.UserID}, nil
	case "DeletedAccount":
		var w struct {
			UserID int32 `json:"userId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return DeletedAccount{UserID: w.UserID}, nil
	}
	return nil, unknownEvent(ChannelAccounts, typename)
}

func parseChatsEvent(typename string, raw json.RawMessage) (Event, error) {
	switch typename {
	case "GroupChatId":
		var w struct {
			ChatID int32 `json:"chatId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return GroupChatID{ChatID: w.ChatID}, nil
	case "UpdatedGroupChat":
		var w struct {
			ChatID         int32            `json:"chatId"`
			Title          *string          `json:"title"`
			Description    *string          `json:"description"`
			NewUserIDs     []int32          `json:"newUserIdList"`
			RemovedUserIDs []int32          `json:"removedUserIdList"`
			AdminIDs       []int32          `json:"adminIdList"`
			IsBroadcast    *bool            `json:"isBroadcast"`
			Publicity      *cache.Publicity `json:"publicity"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UpdatedGroupChat{
			ChatID:         w.ChatID,
			Title:          w.Title,
			Description:    w.Description,
			NewUserIDs:     w.NewUserIDs,
			RemovedUserIDs: w.RemovedUserIDs,
			AdminIDs:       w.AdminIDs,
			IsBroadcast:    w.IsBroadcast,
			Publicity:      w.Publicity,
		}, nil
	case "UpdatedGroupChatPic":
		var w struct {
			ChatID int32 `json:"chatId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UpdatedGroupChatPic{ChatID: w.ChatID}, nil
	case "DeletedPrivateChat":
		var w struct {
			ChatID int32 `json:"chatId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return DeletedPrivateChat{ChatID: w.ChatID}, nil
	}
	return nil, unknownEvent(ChannelChats, typename)
}

func parseMessagesEvent(typename string, raw json.RawMessage) (Event, error) {
	switch typename {
	case "DeletedMessage":
		var w struct {
			ChatID    int32 `json:"chatId"`
			MessageID int32 `json:"messageId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return DeletedMessage{ChatID: w.ChatID, MessageID: w.MessageID}, nil
	case "UpdatedPollMessage":
		var w struct {
			ChatID    int32    `json:"chatId"`
			MessageID int32    `json:"messageId"`
			Poll      wirePoll `json:"poll"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UpdatedPollMessage{ChatID: w.ChatID, MessageID: w.MessageID, Poll: w.Poll.toCache()}, nil
	case "UserChatMessagesRemoval":
		var w struct {
			ChatID int32 `json:"chatId"`
			UserID int32 `json:"userId"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UserChatMessagesRemoval{ChatID: w.ChatID, UserID: w.UserID}, nil
	}
	if strings.HasPrefix(typename, "New") && strings.HasSuffix(typename, "Message") {
		var w wireMessage
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return NewMessage{Message: w.toCache()}, nil
	}
	return nil, unknownEvent(ChannelMessages, typename)
}

func unknownEvent(ch Channel, typename string) error {
	return fmt.Errorf("unknown %s event %q", ch, typename)
}
