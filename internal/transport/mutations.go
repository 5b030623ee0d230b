package transport

import (
	"context"
	"encoding/json"
)

// Mutations return a DomainFailure variant for business refusals and an
// error only for network-boundary failures. FailureNone means accepted.

// CreateTextMessage sends a text message into a chat.
func (c *Client) CreateTextMessage(ctx context.Context, chatID int32, text string) (DomainFailure, error) {
	const doc = `mutation CreateTextMessage($chatId: Int!, $text: MessageText!) {
		createTextMessage(chatId: $chatId, text: $text) { __typename }
	}`
	return c.mutate(ctx, doc, map[string]any{"chatId": chatID, "text": text}, "createTextMessage")
}

// BlockUser blocks a user on the viewer's behalf.
func (c *Client) BlockUser(ctx context.Context, userID int32) (DomainFailure, error) {
	const doc = `mutation BlockUser($id: Int!) { blockUser(id: $id) { __typename } }`
	return c.mutate(ctx, doc, map[string]any{"id": userID}, "blockUser")
}

// UnblockUser removes a block.
func (c *Client) UnblockUser(ctx context.Context, userID int32) (DomainFailure, error) {
	const doc = `mutation UnblockUser($id: Int!) { unblockUser(id: $id) { __typename } }`
	return c.mutate(ctx, doc, map[string]any{"id": userID}, "unblockUser")
}

// CreateContact saves a user as a contact.
func (c *Client) CreateContact(ctx context.Context, userID int32) (DomainFailure, error) {
	const doc = `mutation CreateContact($id: Int!) { createContact(id: $id) { __typename } }`
	return c.mutate(ctx, doc, map[string]any{"id": userID}, "createContact")
}

// DeleteContact removes a saved contact.
func (c *Client) DeleteContact(ctx context.Context, userID int32) (DomainFailure, error) {
	const doc = `mutation DeleteContact($id: Int!) { deleteContact(id: $id) { __typename } }`
	return c.mutate(ctx, doc, map[string]any{"id": userID}, "deleteContact")
}

// LeaveGroupChat removes the viewer from a group chat. The last remaining
// admin of a non-empty chat gets CannotLeaveChat.
func (c *Client) LeaveGroupChat(ctx context.Context, chatID int32) (DomainFailure, error) {
	const doc = `mutation LeaveGroupChat($id: Int!) { leaveGroupChat(id: $id) { __typename } }`
	return c.mutate(ctx, doc, map[string]any{"id": chatID}, "leaveGroupChat")
}

// DeletePrivateChat deletes the viewer's copy of a private chat.
func (c *Client) DeletePrivateChat(ctx context.Context, chatID int32) (DomainFailure, error) {
	const doc = `mutation DeletePrivateChat($id: Int!) { deletePrivateChat(id: $id) { __typename } }`
	return c.mutate(ctx, doc, map[string]any{"id": chatID}, "deletePrivateChat")
}

// SetTyping publishes the viewer's typing indicator for a chat.
func (c *Client) SetTyping(ctx context.Context, chatID int32, isTyping bool) (DomainFailure, error) {
	const doc = `mutation SetTyping($chatId: Int!, $isTyping: Boolean!) {
		setTyping(chatId: $chatId, isTyping: $isTyping) { __typename }
	}`
	return c.mutate(ctx, doc, map[string]any{"chatId": chatID, "isTyping": isTyping}, "setTyping")
}

// mutate executes a mutation whose result is either null (accepted) or a
// typed failure object discriminated by __typename.
func (c *Client) mutate(ctx context.Context, doc string, vars map[string]any, field string) (DomainFailure, error) {
	var resp map[string]json.RawMessage
	if err := c.execute(ctx, doc, vars, &resp); err != nil {
		return FailureNone, err
	}
	raw, ok := resp[field]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return FailureNone, nil
	}
	var head struct {
		Typename string `json:"__typename"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return FailureNone, err
	}
	return failureFromTypename(head.Typename), nil
}

func failureFromTypename(typename string) DomainFailure {
	switch typename {
	case "InvalidChatId":
		return FailureInvalidChatID
	case "InvalidUserId":
		return FailureInvalidUserID
	case "InvalidMessage", "InvalidMessageLength":
		return FailureInvalidMessage
	case "MustBeAdmin":
		return FailureMustBeAdmin
	case "CannotLeaveChat":
		return FailureCannotLeaveChat
	default:
		return DomainFailure(typename)
	}
}
