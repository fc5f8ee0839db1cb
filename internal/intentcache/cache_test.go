package intentcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	logx "notifai/pkg/logx"
)

type capFunc func(ctx context.Context) error

func (f capFunc) Reopen(ctx context.Context) error { return f(ctx) }

type recLauncher struct {
	mu       sync.Mutex
	launched []string
	err      error
}

func (l *recLauncher) Launch(_ context.Context, pkg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, pkg)
	return l.err
}

func fixedClock(c *Cache) *time.Time {
	t := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return t }
	return &t
}

func TestPutEvictsOldestQuarter(t *testing.T) {
	t.Parallel()
	c := New(8, nil, logx.Nop())
	clock := fixedClock(c)
	for i := 0; i < 8; i++ {
		*clock = clock.Add(time.Second)
		c.Put(fmt.Sprintf("n%d", i), nil, "pkg")
	}
	if c.Len() != 8 {
		t.Fatalf("len=%d", c.Len())
	}
	c.Put("n8", nil, "pkg")
	if c.Len() != 7 {
		t.Fatalf("len after eviction=%d, want 7", c.Len())
	}
	for _, gone := range []string{"n0", "n1"} {
		if _, ok := c.Get(gone); ok {
			t.Fatalf("%s should be evicted", gone)
		}
	}
	for _, kept := range []string{"n2", "n7", "n8"} {
		if _, ok := c.Get(kept); !ok {
			t.Fatalf("%s should be kept", kept)
		}
	}
}

func TestEvictionBreaksTiesByInsertion(t *testing.T) {
	t.Parallel()
	c := New(4, nil, logx.Nop())
	fixedClock(c)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("n%d", i), nil, "pkg")
	}
	c.Put("n4", nil, "pkg")
	if _, ok := c.Get("n0"); ok {
		t.Fatalf("first inserted entry should go first")
	}
	if c.Len() != 4 {
		t.Fatalf("len=%d", c.Len())
	}
}

func TestPutExistingDoesNotEvict(t *testing.T) {
	t.Parallel()
	c := New(4, nil, logx.Nop())
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("n%d", i), nil, "pkg")
	}
	c.Put("n3", nil, "other")
	if c.Len() != 4 {
		t.Fatalf("len=%d", c.Len())
	}
	if e, _ := c.Get("n3"); e.Package != "other" {
		t.Fatalf("entry not replaced: %+v", e)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		capErr    error
		noCap     bool
		launchErr error
		id        string
		want      bool
		launched  []string
	}{
		{name: "capability succeeds", id: "a", want: true},
		{name: "capability expired", id: "a", capErr: errors.New("gone"), want: true, launched: []string{"org.example.chat"}},
		{name: "no capability", id: "a", noCap: true, want: true, launched: []string{"org.example.chat"}},
		{name: "launch fails", id: "a", noCap: true, launchErr: errors.New("no desktop entry"), want: false, launched: []string{"org.example.chat"}},
		{name: "miss", id: "missing", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := &recLauncher{err: tt.launchErr}
			c := New(10, l, logx.Nop())
			var capability Capability
			if !tt.noCap {
				capability = capFunc(func(context.Context) error { return tt.capErr })
			}
			c.Put("a", capability, "org.example.chat")

			if got := c.Open(context.Background(), tt.id); got != tt.want {
				t.Fatalf("open=%v, want %v", got, tt.want)
			}
			if diff := cmp.Diff(tt.launched, l.launched); diff != "" {
				t.Fatalf("launches (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOpenPackage(t *testing.T) {
	t.Parallel()
	c := New(0, nil, logx.Nop())
	if c.OpenPackage(context.Background(), "org.example.chat") {
		t.Fatalf("open without launcher should fail")
	}
	l := &recLauncher{}
	c = New(0, l, logx.Nop())
	if c.OpenPackage(context.Background(), "") {
		t.Fatalf("empty package should fail")
	}
	if !c.OpenPackage(context.Background(), "org.example.chat") {
		t.Fatalf("launch should succeed")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	c := New(0, nil, logx.Nop())
	c.Put("a", nil, "p")
	c.Put("b", nil, "p")
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len=%d", c.Len())
	}
}
