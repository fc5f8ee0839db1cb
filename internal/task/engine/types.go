package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// Config controls the task execution engine.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// DefaultTimeout applies when Task.Timeout is 0.
	DefaultTimeout time.Duration
	// MaxQueueDelay drops tasks queued longer than this. 0 disables it.
	MaxQueueDelay time.Duration

	HistorySize int
	RetryMax    int

	// Breaker opens after BreakerTrip consecutive failures of one task name.
	// A negative BreakerTrip disables it.
	BreakerTrip  int
	BreakerBase  time.Duration
	BreakerMax   time.Duration
	BreakerReset time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.BreakerTrip == 0 {
		c.BreakerTrip = 5
	}
	if c.BreakerBase <= 0 {
		c.BreakerBase = 5 * time.Second
	}
	if c.BreakerMax <= 0 {
		c.BreakerMax = 2 * time.Minute
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = 5 * time.Minute
	}
	return c
}

// Options tunes retries for a single task.
type Options struct {
	// RetryMax < 0 disables retries; 0 uses the engine default.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%

	// SkipIfRunning rejects the task while another with the same Name is queued or running.
	SkipIfRunning bool
	// NoBreaker exempts the task from the circuit breaker.
	NoBreaker bool
}

func (o Options) withDefaults(cfg Config) Options {
	switch {
	case o.RetryMax < 0:
		o.RetryMax = 0
	case o.RetryMax == 0:
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	return o
}

// Task is a unit of work executed by the engine.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     Options
}

// gate tracks in-flight runs of one task name for SkipIfRunning.
type gate struct{ busy atomic.Bool }

func (g *gate) acquire() bool { return g.busy.CompareAndSwap(false, true) }
func (g *gate) release()      { g.busy.Store(false) }

type HistoryItem struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
}

// Event types published on the bus.
const (
	EventFinished = "task.finished"
	EventFailed   = "task.failed"
	EventDropped  = "task.dropped"
	EventSkipped  = "task.skipped"
)

type Snapshot struct {
	Enabled  bool `json:"enabled"`
	Workers  int  `json:"workers"`
	QueueLen int  `json:"queue_len"`
	QueueCap int  `json:"queue_cap"`
	InFlight int  `json:"in_flight"`

	DroppedQueueFull uint64 `json:"dropped_queue_full"`
	DroppedStale     uint64 `json:"dropped_stale"`

	BreakersTracked int `json:"breakers_tracked"`
	BreakersOpen    int `json:"breakers_open"`

	History []HistoryItem `json:"history"`
}
