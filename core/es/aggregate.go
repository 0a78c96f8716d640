package es

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidEvent   = errors.New("invalid event")
)

// Aggregate is a domain object driven by commands. HandleCommand decides
// which events a command produces without touching state; Apply is the only
// place where state changes.
type Aggregate[C, E any] interface {
	// AggregateType names the aggregate for logs and envelopes.
	AggregateType() string
	// HandleCommand validates cmd against the current state and returns the
	// resulting events. It must not mutate the aggregate.
	HandleCommand(cmd C) ([]E, error)
	// Apply updates the aggregate state from an event.
	Apply(evt E) error
}

type validator interface{ Validate() error }

// Execute handles cmd and applies the resulting events in order. Events are
// validated before any of them is applied.
func Execute[C, E any](a Aggregate[C, E], cmd C) ([]E, error) {
	events, err := a.HandleCommand(cmd)
	if err != nil {
		return nil, err
	}
	if err := Replay(a, events...); err != nil {
		return nil, err
	}
	return events, nil
}

// Replay applies events in order and stops at the first failure.
func Replay[C, E any](a Aggregate[C, E], events ...E) error {
	for _, e := range events {
		if err := Validate(e); err != nil {
			return err
		}
	}
	for _, e := range events {
		if err := a.Apply(e); err != nil {
			return fmt.Errorf("apply %s to %s: %w", EventType(e), a.AggregateType(), err)
		}
	}
	return nil
}

// Validate runs the event's Validate method, if it has one.
func Validate(evt any) error {
	if v, ok := evt.(validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w %s: %w", ErrInvalidEvent, EventType(evt), err)
		}
	}
	return nil
}
