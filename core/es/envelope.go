package es

import (
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/trvinh99/redis-actor/internal/reflector"
)

// DefaultEventVersion is reported for events without an EventVersion method.
const DefaultEventVersion = "1.0"

// Envelope carries the metadata of an applied event.
type Envelope struct {
	ID            string    `json:"id"`
	Version       Version   `json:"version"`
	AggregateType string    `json:"aggregate"`
	Type          string    `json:"type"`
	EventVersion  string    `json:"event_version"`
	OccurredAt    time.Time `json:"occurred_at"`
	Event         any       `json:"-"`
}

// Seal wraps evt as the version-th event of an aggregate of type aggType.
func Seal(aggType string, version Version, evt any) Envelope {
	return Envelope{
		ID:            gonanoid.Must(),
		Version:       version,
		AggregateType: aggType,
		Type:          EventType(evt),
		EventVersion:  EventVersion(evt),
		OccurredAt:    time.Now(),
		Event:         evt,
	}
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope id is empty")
	}
	if e.AggregateType == "" {
		return fmt.Errorf("envelope aggregate type is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	return nil
}

// LogAttrs returns the envelope metadata as slog attributes.
func (e Envelope) LogAttrs() []any {
	return []any{
		slog.String("event_id", e.ID),
		slog.String("aggregate", e.AggregateType),
		slog.String("event_type", e.Type),
		slog.String("event_version", e.EventVersion),
		e.Version.SlogAttr(),
	}
}

// EventType returns the event's EventType() if implemented, otherwise its Go
// type name.
func EventType(evt any) string {
	if t, ok := evt.(interface{ EventType() string }); ok {
		return t.EventType()
	}
	return reflector.NameOf(evt).Short
}

// EventVersion returns the event's EventVersion() if implemented, otherwise
// DefaultEventVersion.
func EventVersion(evt any) string {
	if v, ok := evt.(interface{ EventVersion() string }); ok {
		return v.EventVersion()
	}
	return DefaultEventVersion
}
