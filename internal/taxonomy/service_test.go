package taxonomy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"notifai/internal/classifier/priority"
	"notifai/internal/eventbus"
	"notifai/internal/storage"
	logx "notifai/pkg/logx"
)

type countInvalidator struct{ n atomic.Int32 }

func (c *countInvalidator) InvalidateSystemCache() { c.n.Add(1) }

func newService(t *testing.T) (*Service, *storage.Store, *countInvalidator, eventbus.Bus) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	inv := &countInvalidator{}
	bus := eventbus.New()
	return New(st, inv, logx.Nop(), bus), st, inv, bus
}

func TestEditsInvalidateBeforeReturning(t *testing.T) {
	t.Parallel()
	s, _, inv, bus := newService(t)
	events, unsub := bus.Subscribe(16, eventbus.TaxonomyChanged)
	defer unsub()
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := s.CreateFolder(ctx, "Travel", "trips"); return err },
		func() error { _, err := s.DescribeFolder(ctx, "travel", "flights and hotels"); return err },
		func() error { _, _, err := s.RenameFolder(ctx, "Travel", "Trips"); return err },
		func() error { return s.SetInstructions(ctx, "Airline texts are High") },
		func() error { _, err := s.DeleteFolder(ctx, "Trips"); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := inv.n.Load(); got != int32(i+1) {
			t.Fatalf("after step %d invalidations=%d", i, got)
		}
	}
	if len(events) != len(steps) {
		t.Fatalf("events=%d, want %d", len(events), len(steps))
	}
}

func TestFailedEditDoesNotInvalidate(t *testing.T) {
	t.Parallel()
	s, _, inv, _ := newService(t)
	ctx := context.Background()

	if _, err := s.CreateFolder(ctx, "work", ""); !errors.Is(err, storage.ErrFolderExists) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.DeleteFolder(ctx, "Personal"); !errors.Is(err, storage.ErrDefaultFolder) {
		t.Fatalf("err=%v", err)
	}
	if _, _, err := s.RenameFolder(ctx, "Nope", "X"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if inv.n.Load() != 0 {
		t.Fatalf("invalidated on failure")
	}
}

func TestRenameMovesRecords(t *testing.T) {
	t.Parallel()
	s, st, _, _ := newService(t)
	ctx := context.Background()
	if _, err := s.CreateFolder(ctx, "Games", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		_ = st.Insert(ctx, storage.Notification{ID: id, Package: "p", AppName: "A", Folder: "Games", Priority: priority.Low, ArrivedAt: time.Now()})
	}
	_, moved, err := s.RenameFolder(ctx, "games", "Play")
	if err != nil || moved != 2 {
		t.Fatalf("moved=%d err=%v", moved, err)
	}
	if n, _ := st.ListNotifications(ctx, storage.ListFilter{Folder: "Play"}); len(n) != 2 {
		t.Fatalf("records under new name=%d", len(n))
	}
}

func TestSetMonitoredKeepsCache(t *testing.T) {
	t.Parallel()
	s, _, inv, _ := newService(t)
	if err := s.SetMonitored(context.Background(), "org.example.chat", "Chat", true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inv.n.Load() != 0 {
		t.Fatalf("monitored apps do not affect the prompt")
	}
	apps, _ := s.MonitoredApps(context.Background())
	if len(apps) != 1 || !apps[0].Enabled {
		t.Fatalf("apps=%+v", apps)
	}
}
