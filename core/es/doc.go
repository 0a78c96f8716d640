// Package es holds the command/event contract used by the domain actors.
//
// An [Aggregate] separates deciding from changing: HandleCommand turns a
// command into events without mutating anything, Apply mutates state from one
// event.
//
//	events, err := es.Execute(agg, ConnectCmd{URLs: urls})
//
// [Execute] runs both steps; callers that need to do work between deciding
// and applying, such as acquiring a resource the event depends on, call
// HandleCommand and [Replay] themselves.
//
// Events may implement EventType() and EventVersion() to control how they are
// named in logs; see [EventType], [EventVersion] and [Seal].
package es
