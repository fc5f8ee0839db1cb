package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"notifai/internal/dispatch"
	"notifai/internal/eventbus"
	"notifai/internal/storage"
	logx "notifai/pkg/logx"
)

var ErrDisabled = errors.New("notifier disabled")

const (
	categoryUrgent = "x-notifai.urgent"
	categoryBatch  = "x-notifai.batch"

	sendTimeout = 10 * time.Second
)

// Service implements dispatch.Sink on top of a Sender.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender Sender
	log    logx.Logger
	bus    eventbus.Bus

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	// server id -> notification record id
	smu       sync.Mutex
	sent      map[uint32]sentEntry
	lastBatch uint32
}

type sentEntry struct {
	record string
	at     time.Time
}

var _ dispatch.Sink = (*Service)(nil)

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
		dedup:  map[string]time.Time{},
		sent:   map[uint32]sentEntry{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.AppName == "" {
		cfg.AppName = "notifai"
	}
	s.cfg = cfg
	// Burst = rate per second so a short spike is not delayed.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// DeliverImmediate shows one high-priority record.
func (s *Service) DeliverImmediate(ctx context.Context, n storage.Notification) error {
	m := Message{
		Title:    n.AppName + ": " + n.Title,
		Body:     n.Body,
		Urgency:  UrgencyCritical,
		Category: categoryUrgent,
		Actions:  []string{"default", "Open"},
	}
	_, err := s.deliver(ctx, m, n.ID, false)
	return err
}

// DeliverBatchSummary shows the batch summary, replacing the previous one
// if it is still on screen.
func (s *Service) DeliverBatchSummary(ctx context.Context, sum dispatch.Summary) error {
	body := sum.Text
	if len(sum.Lines) > 1 {
		body = sum.ExpandedTitle + "\n" + sum.Body()
	}
	s.smu.Lock()
	replaces := s.lastBatch
	s.smu.Unlock()

	m := Message{
		Title:      sum.Title,
		Body:       body,
		Urgency:    UrgencyNormal,
		Category:   categoryBatch,
		ReplacesID: replaces,
	}
	id, err := s.deliver(ctx, m, "", true)
	if err != nil {
		return err
	}
	if id != 0 {
		s.smu.Lock()
		s.lastBatch = id
		s.smu.Unlock()
	}
	return nil
}

// Record returns the notification record behind a server id.
func (s *Service) Record(serverID uint32) (string, bool) {
	s.smu.Lock()
	defer s.smu.Unlock()
	e, ok := s.sent[serverID]
	if !ok || e.record == "" {
		return "", false
	}
	return e.record, true
}

func (s *Service) deliver(ctx context.Context, m Message, record string, batch bool) (uint32, error) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()
	if !cfg.Enabled {
		return 0, ErrDisabled
	}
	if s.sender == nil {
		return 0, errors.New("notifier has no sender")
	}
	m.AppName, m.Icon = cfg.AppName, cfg.Icon

	key := dedupKey(m, record)
	// Batch summaries replace each other; never suppress them.
	if !batch && cfg.DedupWindow > 0 && !s.dedupAllow(key, cfg.DedupWindow, cfg.DedupMaxEntries) {
		s.publish(Event{Kind: "deduped", Title: m.Title, Record: record})
		s.log.Debug("duplicate notification suppressed", logx.String("title", m.Title))
		return 0, nil
	}

	id, err := s.sendWithRetry(ctx, cfg, lim, m)
	if err != nil {
		s.forgetDedup(key)
		s.publish(Event{Kind: "failed", Title: m.Title, Record: record, Error: err.Error()})
		return 0, err
	}
	s.remember(id, record, cfg.DedupMaxEntries)
	s.publish(Event{Kind: "sent", Title: m.Title, Record: record})
	return id, nil
}

func (s *Service) sendWithRetry(ctx context.Context, cfg Config, lim *rate.Limiter, m Message) (uint32, error) {
	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return 0, err
		}
		callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		id, err := s.sender.Send(callCtx, m)
		cancel()
		if err == nil {
			return id, nil
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("sending notification after %d attempts: %w", attempts, lastErr)
}

func (s *Service) remember(id uint32, record string, max int) {
	if id == 0 {
		return
	}
	s.smu.Lock()
	defer s.smu.Unlock()
	s.sent[id] = sentEntry{record: record, at: time.Now()}
	for len(s.sent) > max {
		var (
			oldest uint32
			at     time.Time
			set    bool
		)
		for k, e := range s.sent {
			if !set || e.at.Before(at) {
				oldest, at, set = k, e.at, true
			}
		}
		delete(s.sent, oldest)
	}
}

func (s *Service) publish(e Event) {
	if s.bus == nil {
		return
	}
	e.At = time.Now()
	s.bus.Publish(eventbus.Event{Type: "notifier." + e.Kind, Time: e.At, Data: e})
}

// dedupKey identifies a delivery. A record is shown at most once per
// window no matter how many other records share its text.
func dedupKey(m Message, record string) string {
	if record != "" {
		return "record:" + record
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%s|%s|%s", m.Urgency, m.Category, m.Title, m.Body)
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Drop the earliest expiries until within the cap.
	for len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

// forgetDedup lets a failed delivery be retried inside the window.
func (s *Service) forgetDedup(key string) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
}

// retryDelay is the wait before the attempt after attempt (1-based):
// base * 2^(attempt-1), jittered by 0.7..1.3 and capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return max(d, 0)
}
