package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"notifai/internal/eventbus"
	rtsup "notifai/internal/runtime/supervisor"
	logx "notifai/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service runs tasks on a fixed pool of workers fed by a bounded queue.
type Service struct {
	log logx.Logger
	bus eventbus.Bus

	mu       sync.Mutex
	cfg      Config
	q        chan queued
	stopCh   chan struct{}
	sup      *rtsup.Supervisor
	stopping bool

	gatesMu sync.Mutex
	gates   map[string]*gate

	breaker breaker

	hmu     sync.Mutex
	history []HistoryItem

	idSeq            atomic.Uint64
	inFlight         atomic.Int32
	droppedQueueFull atomic.Uint64
	droppedStale     atomic.Uint64
	lastWarnAt       atomic.Int64
}

type queued struct {
	task       Task
	opt        Options
	timeout    time.Duration
	enqueuedAt time.Time
	gate       *gate
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		bus:   bus,
		gates: map[string]*gate{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config; workers restart when pool or queue size changed.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.stopCh != nil
	s.mu.Unlock()

	if running && (prev.Workers != cfg.Workers || prev.QueueSize != cfg.QueueSize || prev.Enabled != cfg.Enabled) {
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start launches the workers. It is a no-op when disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.stopCh != nil {
		return
	}
	cfg := s.cfg
	s.q = make(chan queued, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopping = false
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "taskengine"))))

	stopCh, queue := s.stopCh, s.q
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		s.sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, stopCh, queue, idx)
			select {
			case <-stopCh:
				return nil
			default:
			}
			if c.Err() != nil {
				return nil
			}
			return errors.New("worker exited unexpectedly")
		})
	}
	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Stop signals the workers and waits for them until ctx ends.
// Tasks still queued are discarded.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	close(s.stopCh)
	sup := s.sup
	s.mu.Unlock()

	if err := sup.Stop(ctx); err != nil && errors.Is(err, ctx.Err()) {
		s.log.Warn("task engine stop timed out", logx.Err(err))
	}

	s.mu.Lock()
	s.q, s.stopCh, s.sup, s.stopping = nil, nil, nil, false
	s.mu.Unlock()
	s.log.Info("task engine stopped")
}

// Enqueue adds t without blocking; a full queue drops it with ErrQueueFull.
func (s *Service) Enqueue(t Task) error {
	return s.enqueue(context.Background(), t, false)
}

// Submit blocks until t is queued, ctx ends or the engine stops.
func (s *Service) Submit(ctx context.Context, t Task) error {
	return s.enqueue(ctx, t, true)
}

func (s *Service) enqueue(ctx context.Context, t Task, block bool) error {
	if t.Run == nil {
		return errors.New("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.New("task Name is required")
	}
	now := time.Now()
	if t.ID == "" {
		t.ID = fmt.Sprintf("tsk-%x-%x", now.UnixNano(), s.idSeq.Add(1))
	}

	s.mu.Lock()
	cfg, q, stopCh, stopping := s.cfg, s.q, s.stopCh, s.stopping
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		return ErrDisabled
	case q == nil || stopping:
		return ErrStopped
	}

	opt := t.Opt.withDefaults(cfg)
	if !opt.NoBreaker {
		if open, until := s.breaker.open(now, t.Name, cfg); open {
			s.publish(EventSkipped, HistoryItem{ID: t.ID, Name: t.Name, Started: now, Error: "circuit_open"})
			s.log.Debug("task skipped: circuit open", logx.String("task", t.Name), logx.Time("until", until))
			return ErrCircuitOpen
		}
	}

	var g *gate
	if opt.SkipIfRunning {
		g = s.gateFor(t.Name)
		if !g.acquire() {
			s.publish(EventSkipped, HistoryItem{ID: t.ID, Name: t.Name, Started: now, Error: "overlap_skip"})
			return ErrOverlapSkip
		}
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	item := queued{task: t, opt: opt, timeout: timeout, enqueuedAt: now, gate: g}

	if !block {
		select {
		case q <- item:
			return nil
		default:
			item.releaseGate()
			s.droppedQueueFull.Add(1)
			s.publish(EventDropped, HistoryItem{ID: t.ID, Name: t.Name, Started: now, Error: "queue_full"})
			if s.shouldWarn(now) {
				s.log.Warn("task dropped: queue full", logx.String("task", t.Name), logx.Int("queue_cap", cap(q)))
			}
			return ErrQueueFull
		}
	}
	select {
	case q <- item:
		return nil
	case <-ctx.Done():
		item.releaseGate()
		return ctx.Err()
	case <-stopCh:
		item.releaseGate()
		return ErrStopped
	}
}

func (q queued) releaseGate() {
	if q.gate != nil {
		q.gate.release()
	}
}

func (s *Service) gateFor(name string) *gate {
	s.gatesMu.Lock()
	defer s.gatesMu.Unlock()
	g := s.gates[name]
	if g == nil {
		g = &gate{}
		s.gates[name] = g
	}
	return g
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg, q := s.cfg, s.q
	s.mu.Unlock()

	s.hmu.Lock()
	h := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()

	tracked, open := s.breaker.counts(time.Now())
	snap := Snapshot{
		Enabled:          cfg.Enabled,
		Workers:          cfg.Workers,
		InFlight:         int(s.inFlight.Load()),
		DroppedQueueFull: s.droppedQueueFull.Load(),
		DroppedStale:     s.droppedStale.Load(),
		BreakersTracked:  tracked,
		BreakersOpen:     open,
		History:          h,
	}
	if q != nil {
		snap.QueueLen, snap.QueueCap = len(q), cap(q)
	}
	return snap
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, item HistoryItem) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: item})
	}
}

func (s *Service) shouldWarn(now time.Time) bool {
	prev := s.lastWarnAt.Load()
	if prev != 0 && now.UnixNano()-prev < int64(warnThrottleEvery) {
		return false
	}
	return s.lastWarnAt.CompareAndSwap(prev, now.UnixNano())
}
