package actor

import (
	"context"
	"errors"
	"log/slog"
)

// ErrSelfQuestion is returned when a handler asks its own address, which
// would deadlock the loop.
var ErrSelfQuestion = errors.New("question addressed to self")

// Context is handed to Behavior.Handle on every run of an execution slot.
// It ends when the slot is stopped or restarted.
type Context struct {
	ctx      context.Context
	log      *slog.Logger
	self     string
	child    string
	mailbox  *Mailbox
	registry *Registry
}

func (c *Context) Context() context.Context { return c.ctx }
func (c *Context) Log() *slog.Logger        { return c.log }
func (c *Context) Registry() *Registry      { return c.registry }

// Self is the address of the children group this slot belongs to.
func (c *Context) Self() string { return c.self }

// ChildID identifies the replica running this slot.
func (c *Context) ChildID() string { return c.child }

// Recv blocks for the next envelope.
func (c *Context) Recv() (Envelope, error) { return c.mailbox.recv(c.ctx) }

// Tell sends msg to name.
func (c *Context) Tell(name string, msg any) error {
	if name == c.self {
		return c.TellSelf(msg)
	}
	return c.registry.Tell(c.ctx, name, msg)
}

// TellSelf queues msg behind the current mailbox content without blocking.
func (c *Context) TellSelf(msg any) error {
	return c.mailbox.TrySend(Envelope{Msg: msg, Sender: c.self})
}

// Ask questions another actor and waits for its reply.
func (c *Context) Ask(ctx context.Context, name string, msg any) (any, error) {
	if name == c.self {
		return nil, ErrSelfQuestion
	}
	return c.registry.Ask(ctx, name, msg)
}
