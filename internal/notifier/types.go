package notifier

import (
	"context"
	"time"
)

type Config struct {
	Enabled         bool
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	AppName         string
	Icon            string
}

type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Message is one desktop notification.
type Message struct {
	AppName  string
	Icon     string
	Title    string
	Body     string
	Urgency  Urgency
	Category string
	// ReplacesID replaces an earlier notification shown by the server.
	ReplacesID uint32
	// Actions are action key / label pairs.
	Actions []string
	Timeout time.Duration
}

// Sender hands a message to the notification server and returns the id
// the server assigned.
type Sender interface {
	Send(ctx context.Context, m Message) (uint32, error)
}

// Event is published on the bus for notifier lifecycle events.
type Event struct {
	Kind   string    `json:"kind"` // sent, deduped, failed
	Title  string    `json:"title"`
	Record string    `json:"record,omitempty"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
