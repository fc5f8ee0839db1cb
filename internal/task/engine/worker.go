package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	logx "notifai/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queued, idx int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(idx)<<32))
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execute(ctx, stopCh, qt, rng)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execute(ctx context.Context, stopCh <-chan struct{}, qt queued, rng *rand.Rand) {
	defer qt.releaseGate()

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	start := time.Now()
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: max(start.Sub(qt.enqueuedAt), 0)}

	if cfg.MaxQueueDelay > 0 && item.QueueDelay > cfg.MaxQueueDelay {
		s.droppedStale.Add(1)
		item.Error = "stale_queue_delay"
		s.record(item)
		s.publish(EventDropped, item)
		if s.shouldWarn(start) {
			s.log.Warn("task dropped: stale queue", logx.String("task", item.Name), logx.Duration("queue_delay", item.QueueDelay))
		}
		return
	}

	var err error
attempts:
	for attempt := 1; attempt <= 1+qt.opt.RetryMax; attempt++ {
		item.Attempts = attempt
		err = s.runOnce(ctx, qt)
		if err == nil || attempt > qt.opt.RetryMax {
			break
		}
		if IsNoRetry(err) {
			break
		}
		delay := retryDelay(qt.opt, attempt, err, rng)
		s.log.Debug("task retry scheduled", logx.String("task", item.Name), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
			break attempts
		case <-stopCh:
			t.Stop()
			err = ErrStopped
			break attempts
		case <-t.C:
		}
	}

	item.Duration = time.Since(start)
	if !qt.opt.NoBreaker {
		s.breaker.record(time.Now(), item.Name, cfg, err)
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", item.Name), logx.Err(err), logx.Int("attempts", item.Attempts), logx.Duration("dur", item.Duration))
		s.publish(EventFailed, item)
	} else {
		s.log.Debug("task completed", logx.String("task", item.Name), logx.Duration("queue_delay", item.QueueDelay), logx.Duration("dur", item.Duration))
		s.publish(EventFinished, item)
	}
	s.record(item)
}

// runOnce runs one attempt; a panic becomes an error.
func (s *Service) runOnce(ctx context.Context, qt queued) (err error) {
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", logx.String("task", qt.task.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return qt.task.Run(ctx)
}

// retryDelay is exponential from RetryBase with jitter, capped at RetryMaxDelay.
// A RetryAfter hint replaces the exponential part.
func retryDelay(opt Options, attempt int, err error, rng *rand.Rand) time.Duration {
	d := opt.RetryBase
	var ra *retryAfterError
	if errors.As(err, &ra) {
		d = ra.after
	} else {
		for i := 1; i < attempt && d < opt.RetryMaxDelay; i++ {
			d *= 2
		}
	}
	if opt.RetryJitter > 0 && rng != nil {
		d = time.Duration(float64(d) * (1 + (rng.Float64()*2-1)*opt.RetryJitter))
	}
	return min(max(d, 0), opt.RetryMaxDelay)
}
