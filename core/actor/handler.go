package actor

import (
	"errors"
	"fmt"
	"log/slog"
)

type (
	// Question wraps a question envelope for a typed handler.
	Question struct {
		env Envelope
	}

	// Registration adds a handler to Handlers. Create them with OnTell,
	// OnQuestion and OnFallback.
	Registration func(h *Handlers)

	matcher func(c *Context, env Envelope) (matched bool, err error)

	// Handlers dispatches envelopes to the first matching typed handler.
	// Tells and questions are matched separately; anything unmatched goes
	// to the fallback, which by default logs and continues.
	Handlers struct {
		tells     []matcher
		questions []matcher
		fallback  func(c *Context, env Envelope) error
		metrics   ActorMetrics
	}
)

// Reply answers the question.
func (q Question) Reply(v any) error { return q.env.Reply(v) }

// Sender is the address of the asking actor, if any.
func (q Question) Sender() string { return q.env.Sender }

// OnTell handles fire-and-forget messages assignable to T. T may be an
// interface type.
func OnTell[T any](f func(c *Context, msg T) error) Registration {
	return func(h *Handlers) {
		h.tells = append(h.tells, func(c *Context, env Envelope) (bool, error) {
			msg, ok := env.Msg.(T)
			if !ok {
				return false, nil
			}
			return true, f(c, msg)
		})
	}
}

// OnQuestion handles request/reply messages assignable to T. Not replying
// is allowed; the asker then runs into its timeout.
func OnQuestion[T any](f func(c *Context, msg T, q Question) error) Registration {
	return func(h *Handlers) {
		h.questions = append(h.questions, func(c *Context, env Envelope) (bool, error) {
			msg, ok := env.Msg.(T)
			if !ok {
				return false, nil
			}
			return true, f(c, msg, Question{env: env})
		})
	}
}

// OnFallback replaces the default handler for unmatched envelopes.
func OnFallback(f func(c *Context, env Envelope) error) Registration {
	return func(h *Handlers) { h.fallback = f }
}

// WithHandlerMetrics reports per-message metrics.
func WithHandlerMetrics(m ActorMetrics) Registration {
	return func(h *Handlers) {
		if m != nil {
			h.metrics = m
		}
	}
}

func NewHandlers(regs ...Registration) *Handlers {
	h := &Handlers{
		metrics: NopActorMetrics(),
		fallback: func(c *Context, env Envelope) error {
			c.Log().Warn("unknown message", slog.String("msg_type", MsgType(env.Msg)), slog.Any("msg", env.Msg))
			return nil
		},
	}
	for _, r := range regs {
		r(h)
	}
	return h
}

// Dispatch routes one envelope. A returned error is unrecoverable for the
// current run.
func (h *Handlers) Dispatch(c *Context, env Envelope) (err error) {
	mt := MsgType(env.Msg)
	defer h.metrics.MessageDuration(mt).ObserveDuration()

	matchers := h.tells
	if env.IsQuestion() {
		matchers = h.questions
	}
	for _, m := range matchers {
		var matched bool
		matched, err = m(c, env)
		if matched {
			h.metrics.MessageProcessed(mt, err == nil)
			return err
		}
	}
	err = h.fallback(c, env)
	h.metrics.MessageProcessed(mt, err == nil)
	return err
}

// Loop receives and dispatches until the run ends or a handler fails.
// It returns nil when the run was ended by its context.
func (h *Handlers) Loop(c *Context) error {
	for {
		env, err := c.Recv()
		if err != nil {
			if c.Context().Err() != nil || errors.Is(err, ErrMailboxClosed) {
				return nil
			}
			return err
		}
		if err := h.Dispatch(c, env); err != nil {
			return fmt.Errorf("handle %s: %w", MsgType(env.Msg), err)
		}
	}
}
