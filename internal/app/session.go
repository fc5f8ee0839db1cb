package app

import (
	"context"
	"errors"
	"sync/atomic"

	"notifai/internal/notifier"
	"notifai/internal/transport/desktop"
)

var errNoSessionBus = errors.New("session bus unavailable")

// session forwards to the desktop client once one is connected. Records
// sent while it is missing stay undelivered and go out with the next batch.
type session struct {
	client atomic.Pointer[desktop.Client]
}

func (s *session) set(c *desktop.Client) { s.client.Store(c) }

func (s *session) get() *desktop.Client { return s.client.Load() }

func (s *session) Send(ctx context.Context, m notifier.Message) (uint32, error) {
	c := s.get()
	if c == nil {
		return 0, errNoSessionBus
	}
	return c.Send(ctx, m)
}

func (s *session) Alert(ctx context.Context, summary, body string) error {
	c := s.get()
	if c == nil {
		return errNoSessionBus
	}
	return c.Alert(ctx, summary, body)
}

func (s *session) Close() error {
	if c := s.client.Swap(nil); c != nil {
		return c.Close()
	}
	return nil
}
