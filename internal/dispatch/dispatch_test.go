package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"notifai/internal/classifier/priority"
	"notifai/internal/eventbus"
	"notifai/internal/storage"
	logx "notifai/pkg/logx"
)

type fakeSink struct {
	immediate []string
	batches   []Summary
	err       error
}

func (s *fakeSink) DeliverImmediate(_ context.Context, n storage.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.immediate = append(s.immediate, n.ID)
	return nil
}

func (s *fakeSink) DeliverBatchSummary(_ context.Context, sum Summary) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, sum)
	return nil
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insert(t *testing.T, st *storage.Store, id, app string, p priority.Tier, at time.Time) storage.Notification {
	t.Helper()
	n := storage.Notification{ID: id, Package: "pkg." + app, AppName: app, Title: "t-" + id, ArrivedAt: at, Folder: "Work", Priority: p}
	if err := st.Insert(context.Background(), n); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return n
}

func TestDispatchByPriority(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	sink := &fakeSink{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, eventbus.NotificationDelivered)
	defer unsub()
	d := New(st, sink, logx.Nop(), bus)
	ctx := context.Background()
	now := time.Now()

	for _, n := range []storage.Notification{
		insert(t, st, "h", "Bank", priority.High, now),
		insert(t, st, "m", "Mail", priority.Medium, now),
		insert(t, st, "l", "Shop", priority.Low, now),
	} {
		if err := d.Dispatch(ctx, n); err != nil {
			t.Fatalf("dispatch %s: %v", n.ID, err)
		}
	}

	if diff := cmp.Diff([]string{"h"}, sink.immediate); diff != "" {
		t.Fatalf("immediate (-want +got):\n%s", diff)
	}
	for id, want := range map[string]bool{"h": true, "m": false, "l": true} {
		got, err := st.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if got.Delivered != want {
			t.Fatalf("%s delivered=%v, want %v", id, got.Delivered, want)
		}
	}
	select {
	case e := <-events:
		if e.Data != "h" {
			t.Fatalf("event data=%v", e.Data)
		}
	default:
		t.Fatalf("no delivered event")
	}
}

func TestDispatchHighFailureLeavesUndelivered(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	d := New(st, &fakeSink{err: errors.New("bus down")}, logx.Nop(), nil)
	n := insert(t, st, "h", "Bank", priority.High, time.Now())
	if err := d.Dispatch(context.Background(), n); err == nil {
		t.Fatalf("expected error")
	}
	got, _ := st.Get(context.Background(), "h")
	if got.Delivered {
		t.Fatalf("marked delivered after failed delivery")
	}
}

func TestRunBatch(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	sink := &fakeSink{}
	d := New(st, sink, logx.Nop(), nil)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	if n, err := d.RunBatch(ctx); err != nil || n != 0 || len(sink.batches) != 0 {
		t.Fatalf("empty batch: n=%d err=%v batches=%d", n, err, len(sink.batches))
	}

	insert(t, st, "b", "Mail", priority.Medium, base.Add(2*time.Minute))
	insert(t, st, "a", "Chat", priority.Medium, base.Add(time.Minute))
	insert(t, st, "x", "Bank", priority.High, base)

	n, err := d.RunBatch(ctx)
	if err != nil || n != 3 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if diff := cmp.Diff([]string{"x"}, sink.immediate); diff != "" {
		t.Fatalf("immediate (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, sink.batches[0].IDs); diff != "" {
		t.Fatalf("batch order (-want +got):\n%s", diff)
	}
	if sink.batches[0].Text != "Chat, Mail" {
		t.Fatalf("text=%q", sink.batches[0].Text)
	}

	if n, _ := d.RunBatch(ctx); n != 0 || len(sink.batches) != 1 {
		t.Fatalf("second run delivered again: n=%d", n)
	}
}

func TestRunBatchFailureRetries(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	sink := &fakeSink{err: errors.New("notification daemon gone")}
	d := New(st, sink, logx.Nop(), nil)
	ctx := context.Background()
	insert(t, st, "a", "Chat", priority.Medium, time.Now())

	if _, err := d.RunBatch(ctx); err == nil {
		t.Fatalf("expected error")
	}
	pending, _ := st.FetchUndeliveredMedium(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending=%d after failed batch", len(pending))
	}

	sink.err = nil
	if n, err := d.RunBatch(ctx); err != nil || n != 1 {
		t.Fatalf("retry n=%d err=%v", n, err)
	}
}

func TestRunBatchRetriesStrandedHigh(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	sink := &fakeSink{err: errors.New("no session bus")}
	d := New(st, sink, logx.Nop(), nil)
	ctx := context.Background()

	n := insert(t, st, "h", "Bank", priority.High, time.Now())
	if err := d.Dispatch(ctx, n); err == nil {
		t.Fatalf("expected delivery error")
	}
	if _, err := d.RunBatch(ctx); err == nil {
		t.Fatalf("expected error while the sink is down")
	}
	if got, _ := st.Get(ctx, "h"); got.Delivered {
		t.Fatalf("marked delivered while the sink is down")
	}

	sink.err = nil
	delivered, err := d.RunBatch(ctx)
	if err != nil || delivered != 1 {
		t.Fatalf("delivered=%d err=%v", delivered, err)
	}
	if diff := cmp.Diff([]string{"h"}, sink.immediate); diff != "" {
		t.Fatalf("immediate (-want +got):\n%s", diff)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("high record went into a summary")
	}
	if got, _ := st.Get(ctx, "h"); !got.Delivered {
		t.Fatalf("record still undelivered")
	}
	if delivered, _ := d.RunBatch(ctx); delivered != 0 {
		t.Fatalf("delivered again: %d", delivered)
	}
}

type gatedSink struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *gatedSink) DeliverImmediate(context.Context, storage.Notification) error {
	if s.calls.Add(1) == 1 {
		close(s.started)
		<-s.release
	}
	return nil
}

func (s *gatedSink) DeliverBatchSummary(context.Context, Summary) error { return nil }

func TestRunBatchSkipsInflightHigh(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	sink := &gatedSink{started: make(chan struct{}), release: make(chan struct{})}
	d := New(st, sink, logx.Nop(), nil)
	ctx := context.Background()
	n := insert(t, st, "h", "Bank", priority.High, time.Now())

	done := make(chan error, 1)
	go func() { done <- d.Dispatch(ctx, n) }()
	<-sink.started

	if delivered, err := d.RunBatch(ctx); err != nil || delivered != 0 {
		t.Fatalf("delivered=%d err=%v", delivered, err)
	}
	close(sink.release)
	if err := <-done; err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if c := sink.calls.Load(); c != 1 {
		t.Fatalf("sink calls=%d, want 1", c)
	}
}

func pending(n int) []storage.Notification {
	apps := []string{"Chat", "Mail", "Bank", "Shop", "News", "Maps", "Docs"}
	out := make([]storage.Notification, n)
	for i := range out {
		out[i] = storage.Notification{ID: fmt.Sprint(i), AppName: apps[i%len(apps)], Title: fmt.Sprintf("m%d", i)}
	}
	return out
}

func TestCompose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want Summary
	}{
		{
			n: 1,
			want: Summary{
				Count: 1, Title: "1 new notifications", Text: "Chat: m0",
				ExpandedTitle: "1 notifications", Lines: []string{"Chat: m0"}, IDs: []string{"0"},
			},
		},
		{
			n: 3,
			want: Summary{
				Count: 3, Title: "3 new notifications", Text: "Chat, Mail, Bank",
				ExpandedTitle: "3 notifications", Lines: []string{"Chat: m0", "Mail: m1", "Bank: m2"},
				IDs: []string{"0", "1", "2"},
			},
		},
		{
			n: 4,
			want: Summary{
				Count: 4, Title: "4 new notifications", Text: "Chat, Mail, Bank and 1 more",
				ExpandedTitle: "4 notifications", Lines: []string{"Chat: m0", "Mail: m1", "Bank: m2", "Shop: m3"},
				IDs: []string{"0", "1", "2", "3"},
			},
		},
		{
			n: 7,
			want: Summary{
				Count: 7, Title: "7 new notifications", Text: "Chat, Mail, Bank and 4 more",
				ExpandedTitle: "7 notifications",
				Lines:         []string{"Chat: m0", "Mail: m1", "Bank: m2", "Shop: m3", "News: m4"},
				Overflow:      "+2 more",
				IDs:           []string{"0", "1", "2", "3", "4", "5", "6"},
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, Compose(pending(tt.n))); diff != "" {
				t.Fatalf("summary mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSummaryBody(t *testing.T) {
	t.Parallel()
	s := Compose(pending(6))
	want := "Chat: m0\nMail: m1\nBank: m2\nShop: m3\nNews: m4\n+1 more"
	if got := s.Body(); got != want {
		t.Fatalf("body=%q", got)
	}
}
