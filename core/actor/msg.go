package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/trvinh99/redis-actor/internal/reflector"
)

var (
	ErrMailboxClosed  = errors.New("mailbox closed")
	ErrMailboxFull    = errors.New("mailbox full")
	ErrNotQuestion    = errors.New("message is not a question")
	ErrAlreadyReplied = errors.New("question already replied")
)

type (
	// Envelope carries one message through a mailbox. Questions carry a
	// reply channel; tells do not.
	Envelope struct {
		Msg    any
		Sender string
		reply  *replySlot
	}

	// replySlot is shared by all copies of a question envelope.
	replySlot struct {
		ch      chan any
		replied atomic.Bool
	}

	// Mailbox is the queue shared by all replicas of a children group.
	Mailbox struct {
		ch     chan Envelope
		mu     sync.RWMutex
		closed bool
		done   chan struct{}
	}
)

const defaultMailboxSize = 1024

func newReplySlot() *replySlot { return &replySlot{ch: make(chan any, 1)} }

func newMailbox(size int) *Mailbox {
	if size <= 0 {
		size = defaultMailboxSize
	}
	return &Mailbox{ch: make(chan Envelope, size), done: make(chan struct{})}
}

// IsQuestion reports whether the sender waits for a reply.
func (e Envelope) IsQuestion() bool { return e.reply != nil }

// Reply answers a question. A question can be answered once.
func (e Envelope) Reply(v any) error {
	if e.reply == nil {
		return ErrNotQuestion
	}
	if !e.reply.replied.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	e.reply.ch <- v
	return nil
}

// Send blocks until the envelope is queued, ctx ends, or the mailbox closes.
func (m *Mailbox) Send(ctx context.Context, e Envelope) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrMailboxClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("send failed: %w", ctx.Err())
	case <-m.done:
		return ErrMailboxClosed
	case m.ch <- e:
		return nil
	}
}

// TrySend queues e without blocking.
func (m *Mailbox) TrySend(e Envelope) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrMailboxClosed
	}
	select {
	case m.ch <- e:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Len is the number of queued envelopes.
func (m *Mailbox) Len() int { return len(m.ch) }

func (m *Mailbox) recv(ctx context.Context) (Envelope, error) {
	select {
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-m.done:
		return Envelope{}, ErrMailboxClosed
	case e := <-m.ch:
		return e, nil
	}
}

func (m *Mailbox) close() {
	close(m.done)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func newID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, gonanoid.Must(8))
}

type msgTyper interface{ MsgType() string }

// MsgType names a message for logs and metrics.
func MsgType(msg any) string {
	if mt, ok := msg.(msgTyper); ok {
		return mt.MsgType()
	}
	return reflector.NameOf(msg).Qualified
}
