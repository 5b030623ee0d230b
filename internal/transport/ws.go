package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SubscriptionTransport opens one logical subscription per call. onEvent
// receives one decoded event per server push in arrival order; onError
// receives a terminal transport failure. The dispatcher injects a fake
// implementation in tests.
type SubscriptionTransport interface {
	OpenSubscription(ctx context.Context, ch Channel, onEvent func(Event), onError func(error)) (func(), error)
}

// WSTransport implements SubscriptionTransport over the
// graphql-transport-ws protocol, one WebSocket connection per channel.
type WSTransport struct {
	wsURL  string
	tokens TokenSource
	logger *zap.Logger
}

// NewWSTransport creates a transport dialing wsURL (ws(s)://host/path).
func NewWSTransport(wsURL string, tokens TokenSource, logger *zap.Logger) *WSTransport {
	return &WSTransport{wsURL: wsURL, tokens: tokens, logger: logger}
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpenSubscription dials, performs the protocol handshake, starts the
// subscription, and reads pushes until closed. The returned function
// closes the connection; it is safe to call once.
func (t *WSTransport) OpenSubscription(ctx context.Context, ch Channel, onEvent func(Event), onError func(error)) (func(), error) {
	dialer := websocket.Dialer{Subprotocols: []string{"graphql-transport-ws"}}
	conn, _, err := dialer.DialContext(ctx, t.wsURL, nil)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	initPayload, _ := json.Marshal(map[string]string{"token": t.tokens.AccessToken()})
	if err := conn.WriteJSON(wsMessage{Type: "connection_init", Payload: initPayload}); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Err: err}
	}
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Err: err}
	}
	if ack.Type != "connection_ack" {
		_ = conn.Close()
		return nil, &ConnectionError{Err: fmt.Errorf("expected connection_ack, got %q", ack.Type)}
	}

	opID := uuid.New().String()
	subPayload, _ := json.Marshal(map[string]string{"query": subscriptionDoc(ch)})
	if err := conn.WriteJSON(wsMessage{ID: opID, Type: "subscribe", Payload: subPayload}); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Err: err}
	}

	var closed atomic.Bool
	var closeOnce sync.Once
	closeFn := func() {
		closeOnce.Do(func() {
			closed.Store(true)
			_ = conn.WriteJSON(wsMessage{ID: opID, Type: "complete"})
			_ = conn.Close()
		})
	}

	go t.readLoop(conn, ch, &closed, onEvent, onError)
	return closeFn, nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn, ch Channel, closed *atomic.Bool, onEvent func(Event), onError func(error)) {
	field := subscriptionField(ch)
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !closed.Load() {
				onError(&ConnectionError{Err: err})
			}
			return
		}
		switch msg.Type {
		case "next":
			var payload struct {
				Data map[string]json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				t.logger.Warn("malformed subscription payload", zap.String("channel", string(ch)), zap.Error(err))
				continue
			}
			evt, err := ParseEvent(ch, payload.Data[field])
			if err != nil {
				t.logger.Warn("unparseable subscription event", zap.String("channel", string(ch)), zap.Error(err))
				continue
			}
			onEvent(evt)
		case "error":
			onError(&ServerError{Message: string(msg.Payload)})
			return
		case "complete":
			if !closed.Load() {
				onError(&ConnectionError{Err: fmt.Errorf("server completed %s subscription", ch)})
			}
			return
		case "ping":
			_ = conn.WriteJSON(wsMessage{Type: "pong"})
		}
	}
}

func subscriptionField(ch Channel) string {
	switch ch {
	case ChannelAccounts:
		return "subscribeToAccounts"
	case ChannelChats:
		return "subscribeToChats"
	case ChannelMessages:
		return "subscribeToMessages"
	case ChannelOnline:
		return "subscribeToOnlineStatuses"
	case ChannelTyping:
		return "subscribeToTypingStatuses"
	}
	return ""
}

func subscriptionDoc(ch Channel) string {
	switch ch {
	case ChannelAccounts:
		return `subscription SubscribeToAccounts {
			subscribeToAccounts {
				__typename
				... on CreatedSubscription { placeholder }
				... on UpdatedAccount {` + accountFields + ` }
				... on UpdatedProfilePic { userId }
				... on BlockedAccount {` + accountFields + ` }
				... on UnblockedAccount { userId }
				... on NewContact {` + accountFields + ` }
				... on DeletedContact { userId }
				... on DeletedAccount { userId }
			}
		}`
	case ChannelChats:
		return `subscription SubscribeToChats {
			subscribeToChats {
				__typename
				... on CreatedSubscription { placeholder }
				... on GroupChatId { chatId }
				... on UpdatedGroupChat {
					chatId title description newUserIdList removedUserIdList
					adminIdList isBroadcast publicity
				}
				... on UpdatedGroupChatPic { chatId }
				... on DeletedPrivateChat { chatId }
			}
		}`
	case ChannelMessages:
		return `subscription SubscribeToMessages {
			subscribeToMessages {
				__typename
				... on CreatedSubscription { placeholder }
				... on NewTextMessage { chatId messageId sent sender { userId username } textMessage }
				... on NewActionMessage { chatId messageId sent sender { userId username } textMessage }
				... on NewPicMessage { chatId messageId sent sender { userId username } filename }
				... on NewAudioMessage { chatId messageId sent sender { userId username } filename }
				... on NewVideoMessage { chatId messageId sent sender { userId username } filename }
				... on NewDocMessage { chatId messageId sent sender { userId username } filename }
				... on NewPollMessage { chatId messageId sent sender { userId username } poll { question options { option voterIdList } } }
				... on NewGroupChatInviteMessage { chatId messageId sent sender { userId username } }
				... on DeletedMessage { chatId messageId }
				... on UpdatedPollMessage { chatId messageId poll { question options { option voterIdList } } }
				... on UserChatMessagesRemoval { chatId userId }
			}
		}`
	case ChannelOnline:
		return `subscription SubscribeToOnlineStatuses {
			subscribeToOnlineStatuses {
				__typename
				... on CreatedSubscription { placeholder }
				... on OnlineStatus { userId isOnline lastOnline }
			}
		}`
	case ChannelTyping:
		return `subscription SubscribeToTypingStatuses {
			subscribeToTypingStatuses {
				__typename
				... on CreatedSubscription { placeholder }
				... on TypingStatus { userId chatId isTyping }
			}
		}`
	}
	return ""
}
