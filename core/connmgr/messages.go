package connmgr

import (
	"time"

	"github.com/trvinh99/redis-actor/core/es"
	"github.com/trvinh99/redis-actor/core/pool"
)

type (
	// Insert writes Value under Key. A positive Expire is applied with a
	// second, separate operation.
	Insert struct {
		Key    string
		Value  []byte
		Expire time.Duration
	}

	// Query asks for the value under Key. It is answered with a QueryResult
	// once the aggregate is Initialized and dropped before that.
	Query struct{ Key string }

	Delete struct{ Key string }

	// GetStatus is always answered with a Status.
	GetStatus struct{}

	Outcome int

	QueryResult struct {
		Outcome Outcome
		Value   []byte
		Err     string
	}

	Status struct {
		State     State      `json:"state"`
		URLs      []string   `json:"urls"`
		Version   es.Version `json:"version"`
		Pool      PoolStatus `json:"pool"`
		LastError string     `json:"last_error,omitempty"`
	}

	PoolStatus struct {
		MaxSize     int `json:"max_size"`
		Connections int `json:"connections"`
		Idle        int `json:"idle"`
	}
)

const (
	Found Outcome = iota
	Absent
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Absent:
		return "absent"
	default:
		return "unavailable"
	}
}

func (Insert) MsgType() string    { return "insert" }
func (Query) MsgType() string     { return "query" }
func (Delete) MsgType() string    { return "delete" }
func (GetStatus) MsgType() string { return "status" }

func poolStatus(max int, s pool.State) PoolStatus {
	return PoolStatus{MaxSize: max, Connections: s.Connections, Idle: s.Idle}
}
