// Package dispatch decides what the user sees for each classified
// notification.
//
//	high   -> delivered now, marked delivered; retried by the next batch run
//	          if delivery failed
//	medium -> left for the next batch
//	low    -> marked delivered, never shown
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"notifai/internal/classifier/priority"
	"notifai/internal/eventbus"
	"notifai/internal/storage"
	logx "notifai/pkg/logx"
)

// Sink shows notifications to the user. Both calls report synchronously
// whether delivery succeeded.
type Sink interface {
	DeliverImmediate(ctx context.Context, n storage.Notification) error
	DeliverBatchSummary(ctx context.Context, s Summary) error
}

type Store interface {
	MarkDelivered(ctx context.Context, ids ...string) error
	FetchUndeliveredMedium(ctx context.Context) ([]storage.Notification, error)
	FetchUndeliveredHigh(ctx context.Context) ([]storage.Notification, error)
}

type Dispatcher struct {
	store Store
	sink  Sink
	log   logx.Logger
	bus   eventbus.Bus

	// ids whose immediate delivery is in progress
	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(store Store, sink Sink, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		store:    store,
		sink:     sink,
		log:      log.With(logx.String("comp", "dispatch")),
		bus:      bus,
		inflight: make(map[string]struct{}),
	}
}

// Dispatch routes one persisted record by its priority.
func (d *Dispatcher) Dispatch(ctx context.Context, n storage.Notification) error {
	switch n.Priority {
	case priority.High:
		if _, err := d.deliverHigh(ctx, n); err != nil {
			return err
		}
	case priority.Low:
		if err := d.store.MarkDelivered(ctx, n.ID); err != nil {
			return err
		}
		d.log.Debug("low priority, suppressed", logx.String("id", n.ID))
	default:
		d.log.Debug("queued for batch", logx.String("id", n.ID))
	}
	return nil
}

// deliverHigh shows n and marks it delivered. It reports false without
// error when another delivery of n is already running.
func (d *Dispatcher) deliverHigh(ctx context.Context, n storage.Notification) (bool, error) {
	d.mu.Lock()
	if _, busy := d.inflight[n.ID]; busy {
		d.mu.Unlock()
		return false, nil
	}
	d.inflight[n.ID] = struct{}{}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, n.ID)
		d.mu.Unlock()
	}()

	if err := d.sink.DeliverImmediate(ctx, n); err != nil {
		return false, fmt.Errorf("delivering %s: %w", n.ID, err)
	}
	if err := d.store.MarkDelivered(ctx, n.ID); err != nil {
		return false, err
	}
	d.publish(eventbus.NotificationDelivered, n.ID)
	d.log.Info("delivered high priority notification", logx.String("id", n.ID), logx.String("app", n.AppName))
	return true, nil
}

// RunBatch first retries high-priority records whose immediate delivery
// failed, one notification each, then delivers every pending
// medium-priority record as one summary. Records are marked delivered only
// after they went out, so a failed delivery is retried by the next run.
// It returns the number of records delivered.
func (d *Dispatcher) RunBatch(ctx context.Context) (int, error) {
	delivered, highErr := d.retryHigh(ctx)

	pending, err := d.store.FetchUndeliveredMedium(ctx)
	if err != nil {
		return delivered, errors.Join(highErr, err)
	}
	if len(pending) == 0 {
		d.log.Debug("no pending notifications to batch")
		return delivered, highErr
	}

	s := Compose(pending)
	if err := d.sink.DeliverBatchSummary(ctx, s); err != nil {
		return delivered, errors.Join(highErr, fmt.Errorf("delivering batch of %d: %w", s.Count, err))
	}
	if err := d.store.MarkDelivered(ctx, s.IDs...); err != nil {
		return delivered, errors.Join(highErr, fmt.Errorf("marking batch delivered: %w", err))
	}
	d.publish(eventbus.BatchDelivered, s.Count)
	d.log.Info("batch delivered", logx.Int("count", s.Count))
	return delivered + s.Count, highErr
}

func (d *Dispatcher) retryHigh(ctx context.Context) (int, error) {
	stranded, err := d.store.FetchUndeliveredHigh(ctx)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for _, rec := range stranded {
		ok, err := d.deliverHigh(ctx, rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			n++
		}
	}
	if len(stranded) > 0 {
		d.log.Info("retried high priority notifications", logx.Int("pending", len(stranded)), logx.Int("delivered", n))
	}
	return n, errors.Join(errs...)
}

func (d *Dispatcher) publish(typ string, data any) {
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
