package engine

import (
	"sync"
	"time"
)

// breaker is a consecutive-failure circuit breaker keyed by task name.
// After trip failures it opens for base, doubling per further failure up to max.
// A success, or no failure for reset, closes it.
type breaker struct {
	mu sync.Mutex
	m  map[string]*breakerState
}

type breakerState struct {
	fails     int
	openUntil time.Time
	lastFail  time.Time
}

func (b *breaker) state(name string) *breakerState {
	if b.m == nil {
		b.m = map[string]*breakerState{}
	}
	st := b.m[name]
	if st == nil {
		st = &breakerState{}
		b.m[name] = st
	}
	return st
}

func (st *breakerState) expire(now time.Time, cfg Config) {
	if !st.lastFail.IsZero() && now.Sub(st.lastFail) > cfg.BreakerReset {
		*st = breakerState{}
	}
}

func (b *breaker) open(now time.Time, name string, cfg Config) (bool, time.Time) {
	if cfg.BreakerTrip < 0 {
		return false, time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(name)
	st.expire(now, cfg)
	if now.Before(st.openUntil) {
		return true, st.openUntil
	}
	return false, time.Time{}
}

func (b *breaker) record(now time.Time, name string, cfg Config, err error) {
	if cfg.BreakerTrip < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(name)
	if err == nil {
		*st = breakerState{}
		return
	}
	st.expire(now, cfg)
	st.fails++
	st.lastFail = now
	if st.fails < cfg.BreakerTrip {
		return
	}
	d := cfg.BreakerBase
	for i := cfg.BreakerTrip; i < st.fails && d < cfg.BreakerMax; i++ {
		d *= 2
	}
	st.openUntil = now.Add(min(d, cfg.BreakerMax))
}

func (b *breaker) counts(now time.Time) (tracked, open int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, st := range b.m {
		tracked++
		if now.Before(st.openUntil) {
			open++
		}
	}
	return tracked, open
}
