// Package action is the write path: it issues the mutations a chat client
// performs and reports their typed domain failures. It never mutates the
// store; the resulting state arrives back through the subscription
// dispatcher.
package action

import (
	"context"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/transport"
	"go.uber.org/zap"
)

// Mutator is the mutation surface the command layer consumes from the
// transport.
type Mutator interface {
	CreateTextMessage(ctx context.Context, chatID int32, text string) (transport.DomainFailure, error)
	BlockUser(ctx context.Context, userID int32) (transport.DomainFailure, error)
	UnblockUser(ctx context.Context, userID int32) (transport.DomainFailure, error)
	CreateContact(ctx context.Context, userID int32) (transport.DomainFailure, error)
	DeleteContact(ctx context.Context, userID int32) (transport.DomainFailure, error)
	LeaveGroupChat(ctx context.Context, chatID int32) (transport.DomainFailure, error)
	DeletePrivateChat(ctx context.Context, chatID int32) (transport.DomainFailure, error)
	SetTyping(ctx context.Context, chatID int32, isTyping bool) (transport.DomainFailure, error)
}

// Policy receives failures absorbed at the network boundary, mirroring the
// coordinator's policy.
type Policy struct {
	OnUnauthorized func()
}

// Commands issues mutations on behalf of the UI collaborator. A returned
// DomainFailure other than FailureNone is a server-side rule violation the
// caller should surface; ok reports whether the request reached the server
// at all.
type Commands struct {
	api    Mutator
	bus    *bus.Bus
	logger *zap.Logger
	policy Policy
}

// NewCommands creates the command layer.
func NewCommands(api Mutator, b *bus.Bus, logger *zap.Logger, policy Policy) *Commands {
	return &Commands{api: api, bus: b, logger: logger, policy: policy}
}

func (c *Commands) run(op string, failure transport.DomainFailure, err error) (transport.DomainFailure, bool) {
	if err == nil {
		return failure, true
	}
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
	return transport.FailureNone, false
}

// SendText sends a text message to a chat.
func (c *Commands) SendText(ctx context.Context, chatID int32, text string) (transport.DomainFailure, bool) {
	failure, err := c.api.CreateTextMessage(ctx, chatID, text)
	return c.run("send text", failure, err)
}

// Block blocks a user. The blocked list updates via the accounts channel.
func (c *Commands) Block(ctx context.Context, userID int32) (transport.DomainFailure, bool) {
	failure, err := c.api.BlockUser(ctx, userID)
	return c.run("block user", failure, err)
}

// Unblock unblocks a user.
func (c *Commands) Unblock(ctx context.Context, userID int32) (transport.DomainFailure, bool) {
	failure, err := c.api.UnblockUser(ctx, userID)
	return c.run("unblock user", failure, err)
}

// AddContact saves a user as a contact.
func (c *Commands) AddContact(ctx context.Context, userID int32) (transport.DomainFailure, bool) {
	failure, err := c.api.CreateContact(ctx, userID)
	return c.run("add contact", failure, err)
}

// RemoveContact deletes a saved contact.
func (c *Commands) RemoveContact(ctx context.Context, userID int32) (transport.DomainFailure, bool) {
	failure, err := c.api.DeleteContact(ctx, userID)
	return c.run("remove contact", failure, err)
}

// LeaveChat leaves a group chat. The chat disappears from the store when
// the server pushes the membership change.
func (c *Commands) LeaveChat(ctx context.Context, chatID int32) (transport.DomainFailure, bool) {
	failure, err := c.api.LeaveGroupChat(ctx, chatID)
	return c.run("leave chat", failure, err)
}

// DeleteChat deletes the viewer's side of a private chat.
func (c *Commands) DeleteChat(ctx context.Context, chatID int32) (transport.DomainFailure, bool) {
	failure, err := c.api.DeletePrivateChat(ctx, chatID)
	return c.run("delete chat", failure, err)
}

// SetTyping reports the viewer's typing state in a chat.
func (c *Commands) SetTyping(ctx context.Context, chatID int32, isTyping bool) (transport.DomainFailure, bool) {
	failure, err := c.api.SetTyping(ctx, chatID, isTyping)
	return c.run("set typing", failure, err)
}
