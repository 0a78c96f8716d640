package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotRegistered   = errors.New("name not registered")
	ErrNameTaken       = errors.New("name already registered")
	ErrUnexpectedReply = errors.New("unexpected reply type")
)

// Registry resolves process-wide names to mailboxes. It is passed explicitly
// to everything that needs to address actors.
type Registry struct {
	mu     sync.RWMutex
	names  map[string]*Mailbox
	groups map[string]map[*Mailbox]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		names:  make(map[string]*Mailbox),
		groups: make(map[string]map[*Mailbox]struct{}),
	}
}

// Register binds name to mb.
func (r *Registry) Register(name string, mb *Mailbox) error {
	if name == "" {
		return errors.New("name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	r.names[name] = mb
	return nil
}

// Deregister removes name if it is still bound to mb.
func (r *Registry) Deregister(name string, mb *Mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.names[name]; ok && cur == mb {
		delete(r.names, name)
	}
}

func (r *Registry) join(dispatcher string, mb *Mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[dispatcher]
	if !ok {
		g = make(map[*Mailbox]struct{})
		r.groups[dispatcher] = g
	}
	g[mb] = struct{}{}
}

func (r *Registry) leave(dispatcher string, mb *Mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[dispatcher]; ok {
		delete(g, mb)
		if len(g) == 0 {
			delete(r.groups, dispatcher)
		}
	}
}

// Lookup returns the mailbox bound to name.
func (r *Registry) Lookup(name string) (*Mailbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mb, ok := r.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return mb, nil
}

// Names lists the registered names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	return out
}

// Tell sends msg to name without waiting for a reply.
func (r *Registry) Tell(ctx context.Context, name string, msg any) error {
	mb, err := r.Lookup(name)
	if err != nil {
		return err
	}
	return mb.Send(ctx, Envelope{Msg: msg})
}

// Ask sends msg to name and waits for the reply until ctx ends. A recipient
// that never replies surfaces as the context error.
func (r *Registry) Ask(ctx context.Context, name string, msg any) (any, error) {
	mb, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	reply := newReplySlot()
	if err := mb.Send(ctx, Envelope{Msg: msg, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case v := <-reply.ch:
		return v, nil
	}
}

// Broadcast tells msg to every group that joined dispatcher. It returns the
// number of groups reached and the joined send errors.
func (r *Registry) Broadcast(ctx context.Context, dispatcher string, msg any) (int, error) {
	r.mu.RLock()
	targets := make([]*Mailbox, 0, len(r.groups[dispatcher]))
	for mb := range r.groups[dispatcher] {
		targets = append(targets, mb)
	}
	r.mu.RUnlock()

	var errs []error
	sent := 0
	for _, mb := range targets {
		if err := mb.Send(ctx, Envelope{Msg: msg}); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Ask is the typed form of Registry.Ask.
func Ask[R any](ctx context.Context, r *Registry, name string, msg any) (out R, err error) {
	v, err := r.Ask(ctx, name, msg)
	if err != nil {
		return out, err
	}
	out, ok := v.(R)
	if !ok {
		return out, fmt.Errorf("%w: %T", ErrUnexpectedReply, v)
	}
	return out, nil
}
