package connmgr

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/trvinh99/redis-actor/core/es"
	"github.com/trvinh99/redis-actor/ports/kv"
)

// AggregateType names the connection manager in logs and event envelopes.
const AggregateType = "redis"

var (
	ErrPool        = errors.New("connection pool")
	ErrNoDialer    = errors.New("dialer is required")
	ErrEmptyKey    = errors.New("key is empty")
	ErrNotFound    = errors.New("key not found")
	ErrUnavailable = errors.New("store unavailable")
	ErrTimeout     = errors.New("no reply")
)

// State is the connection readiness of the aggregate.
type State int

const (
	Uninitialized State = iota
	Initialized
)

func (s State) String() string {
	if s == Initialized {
		return "initialized"
	}
	return "uninitialized"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "initialized":
		*s = Initialized
	case "uninitialized":
		*s = Uninitialized
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

type (
	// Command is an intent sent to the aggregate.
	Command interface{ isCommand() }

	ConnectRedisServer   struct{ URLs []string }
	ReconnectRedisServer struct{ URLs []string }

	// Event is a fact derived from a command. Only events change state.
	Event interface {
		isEvent()
		EventType() string
		EventVersion() string
	}

	RedisServerConnected   struct{ URLs []string }
	RedisServerReconnected struct{ URLs []string }
)

func (ConnectRedisServer) isCommand()   {}
func (ReconnectRedisServer) isCommand() {}

func (RedisServerConnected) isEvent()   {}
func (RedisServerReconnected) isEvent() {}

func (e RedisServerConnected) EventType() string {
	return "Redis connect to cluster server: " + formatURLs(e.URLs)
}

func (e RedisServerReconnected) EventType() string {
	return "Redis reconnect to cluster server: " + formatURLs(e.URLs)
}

func (RedisServerConnected) EventVersion() string   { return "1.0" }
func (RedisServerReconnected) EventVersion() string { return "1.0" }

func (e RedisServerConnected) Validate() error   { return validateURLs(e.URLs) }
func (e RedisServerReconnected) Validate() error { return validateURLs(e.URLs) }

func validateURLs(urls []string) error {
	if len(urls) == 0 {
		return kv.ErrNoURLs
	}
	return nil
}

// formatURLs renders urls as ["a", "b"].
func formatURLs(urls []string) string {
	quoted := make([]string, len(urls))
	for i, u := range urls {
		quoted[i] = strconv.Quote(u)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func eventURLs(e Event) []string {
	switch e := e.(type) {
	case RedisServerConnected:
		return e.URLs
	case RedisServerReconnected:
		return e.URLs
	}
	return nil
}

// HandleCommand turns a command into exactly one event. It never changes
// the aggregate.
func (r *Redis) HandleCommand(cmd Command) ([]Event, error) {
	switch c := cmd.(type) {
	case ConnectRedisServer:
		if err := validateURLs(c.URLs); err != nil {
			return nil, err
		}
		return []Event{RedisServerConnected{URLs: slices.Clone(c.URLs)}}, nil
	case ReconnectRedisServer:
		if err := validateURLs(c.URLs); err != nil {
			return nil, err
		}
		return []Event{RedisServerReconnected{URLs: slices.Clone(c.URLs)}}, nil
	}
	return nil, fmt.Errorf("%w: %T", es.ErrUnknownCommand, cmd)
}

// Apply records an event. Callers apply an event only once a pool for its
// urls is in place, so both events leave the aggregate Initialized.
func (r *Redis) Apply(evt Event) error {
	switch e := evt.(type) {
	case RedisServerConnected:
		r.State = Initialized
		r.URLs = slices.Clone(e.URLs)
	case RedisServerReconnected:
		r.State = Initialized
		r.URLs = slices.Clone(e.URLs)
	default:
		return fmt.Errorf("%w: %T", es.ErrUnknownEvent, evt)
	}
	r.Version = r.Version.Next()
	return nil
}

func (*Redis) AggregateType() string { return AggregateType }

var _ es.Aggregate[Command, Event] = (*Redis)(nil)
