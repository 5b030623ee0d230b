package transport

import (
	"context"
	"encoding/json"

	"github.com/matheus3301/parley/internal/cache"
	"github.com/matheus3301/parley/internal/page"
)

const accountFields = `
	__typename
	userId
	username
	emailAddress
	firstName
	lastName
	bio`

const messageFields = `
	__typename
	messageId
	sent
	sender { userId username }
	... on TextMessage { textMessage }
	... on PicMessage { filename }
	... on AudioMessage { filename }
	... on VideoMessage { filename }
	... on DocMessage { filename }
	... on PollMessage { poll { question options { option voterIdList } } }`

const chatFields = `
	__typename
	chatId
	... on PrivateChat {
		user { userId username }
	}
	... on GroupChat {
		title
		description
		publicity
		isBroadcast
		adminIdList
		users { edges { node { userId username } } }
	}
	messages(last: 1) { edges { node {` + messageFields + ` } } }`

// Account reads one account. A nil result without error means the user no
// longer exists.
func (c *Client) Account(ctx context.Context, userID int32) (*cache.Account, error) {
	const doc = `query ReadAccount($id: Int!) { readAccount(id: $id) {` + accountFields + ` } }`
	var resp struct {
		Account *wireAccount `json:"readAccount"`
	}
	if err := c.execute(ctx, doc, map[string]any{"id": userID}, &resp); err != nil {
		return nil, err
	}
	if resp.Account == nil {
		return nil, nil
	}
	a := resp.Account.toCache()
	return &a, nil
}

// Chats reads every chat the viewer participates in, each with only its
// newest message.
func (c *Client) Chats(ctx context.Context) ([]cache.Chat, error) {
	const doc = `query ReadChats { readChats {` + chatFields + ` } }`
	var resp struct {
		Chats []wireChat `json:"readChats"`
	}
	if err := c.execute(ctx, doc, nil, &resp); err != nil {
		return nil, err
	}
	chats := make([]cache.Chat, 0, len(resp.Chats))
	for _, w := range resp.Chats {
		chats = append(chats, w.toCache())
	}
	return chats, nil
}

// Chat reads one chat. A nil result without error means the server no
// longer knows the chat (deleted, or the viewer is no longer in it).
func (c *Client) Chat(ctx context.Context, chatID int32) (*cache.Chat, error) {
	const doc = `query ReadChat($id: Int!) { readChat(id: $id) {` + chatFields + ` } }`
	var resp struct {
		Chat json.RawMessage `json:"readChat"`
	}
	if err := c.execute(ctx, doc, map[string]any{"id": chatID}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Chat) == 0 || string(resp.Chat) == "null" {
		return nil, nil
	}
	var head struct {
		Typename string `json:"__typename"`
	}
	if err := json.Unmarshal(resp.Chat, &head); err != nil {
		return nil, err
	}
	if head.Typename == "InvalidChatId" {
		return nil, nil
	}
	var w wireChat
	if err := json.Unmarshal(resp.Chat, &w); err != nil {
		return nil, err
	}
	chat := w.toCache()
	return &chat, nil
}

// Contacts reads the viewer's saved contacts.
func (c *Client) Contacts(ctx context.Context) ([]cache.Account, error) {
	const doc = `query ReadContacts { readContacts {` + accountFields + ` } }`
	var resp struct {
		Contacts []wireAccount `json:"readContacts"`
	}
	if err := c.execute(ctx, doc, nil, &resp); err != nil {
		return nil, err
	}
	return accountsToCache(resp.Contacts), nil
}

// BlockedUsers reads the accounts the viewer has blocked.
func (c *Client) BlockedUsers(ctx context.Context) ([]cache.Account, error) {
	const doc = `query ReadBlockedUsers { readBlockedUsers {` + accountFields + ` } }`
	var resp struct {
		Blocked []wireAccount `json:"readBlockedUsers"`
	}
	if err := c.execute(ctx, doc, nil, &resp); err != nil {
		return nil, err
	}
	return accountsToCache(resp.Blocked), nil
}

// OnlineStatus reads one user's presence. Nil without error means the user
// does not exist.
func (c *Client) OnlineStatus(ctx context.Context, userID int32) (*cache.OnlineStatus, error) {
	const doc = `query ReadOnlineStatus($userId: Int!) {
		readOnlineStatus(userId: $userId) { __typename userId isOnline lastOnline }
	}`
	var resp struct {
		Status json.RawMessage `json:"readOnlineStatus"`
	}
	if err := c.execute(ctx, doc, map[string]any{"userId": userID}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Status) == 0 || string(resp.Status) == "null" {
		return nil, nil
	}
	var head struct {
		Typename string `json:"__typename"`
	}
	if err := json.Unmarshal(resp.Status, &head); err != nil {
		return nil, err
	}
	if head.Typename == "InvalidUserId" {
		return nil, nil
	}
	var w wireOnlineStatus
	if err := json.Unmarshal(resp.Status, &w); err != nil {
		return nil, err
	}
	s := w.toCache()
	return &s, nil
}

// TypingStatuses reads every typing status visible to the viewer.
func (c *Client) TypingStatuses(ctx context.Context) ([]cache.TypingStatus, error) {
	const doc = `query ReadTypingStatuses { readTypingStatuses { userId chatId isTyping } }`
	var resp struct {
		Statuses []wireTypingStatus `json:"readTypingStatuses"`
	}
	if err := c.execute(ctx, doc, nil, &resp); err != nil {
		return nil, err
	}
	statuses := make([]cache.TypingStatus, 0, len(resp.Statuses))
	for _, w := range resp.Statuses {
		statuses = append(statuses, w.toCache())
	}
	return statuses, nil
}

// SearchUsers runs a paginated user search. Pass nil after for the first
// page; edge order is the server's.
func (c *Client) SearchUsers(ctx context.Context, query string, first int32, after *string) (page.Page[cache.AccountPreview], error) {
	const doc = `query SearchUsers($query: String!, $first: Int, $after: Cursor) {
		searchUsers(query: $query, first: $first, after: $after) {
			edges { node { userId username } cursor }
			pageInfo { hasNextPage }
		}
	}`
	var resp struct {
		Result wireEdges[wireAccountPreview] `json:"searchUsers"`
	}
	vars := map[string]any{"query": query, "first": first}
	if after != nil {
		vars["after"] = *after
	}
	if err := c.execute(ctx, doc, vars, &resp); err != nil {
		return page.Page[cache.AccountPreview]{}, err
	}
	out := page.Page[cache.AccountPreview]{HasNextPage: resp.Result.PageInfo.HasNextPage}
	for _, e := range resp.Result.Edges {
		out.Edges = append(out.Edges, page.Edge[cache.AccountPreview]{Node: e.Node.toCache(), Cursor: e.Cursor})
	}
	return out, nil
}

// SearchPublicChats runs a paginated public group chat search.
func (c *Client) SearchPublicChats(ctx context.Context, query string, first int32, after *string) (page.Page[cache.Chat], error) {
	const doc = `query SearchPublicChats($query: String!, $first: Int, $after: Cursor) {
		searchPublicChats(query: $query, first: $first, after: $after) {
			edges { node {` + chatFields + ` } cursor }
			pageInfo { hasNextPage }
		}
	}`
	var resp struct {
		Result wireEdges[wireChat] `json:"searchPublicChats"`
	}
	vars := map[string]any{"query": query, "first": first}
	if after != nil {
		vars["after"] = *after
	}
	if err := c.execute(ctx, doc, vars, &resp); err != nil {
		return page.Page[cache.Chat]{}, err
	}
	out := page.Page[cache.Chat]{HasNextPage: resp.Result.PageInfo.HasNextPage}
	for _, e := range resp.Result.Edges {
		out.Edges = append(out.Edges, page.Edge[cache.Chat]{Node: e.Node.toCache(), Cursor: e.Cursor})
	}
	return out, nil
}

func accountsToCache(ws []wireAccount) []cache.Account {
	out := make([]cache.Account, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toCache())
	}
	return out
}
