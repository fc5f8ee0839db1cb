package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"notifai/internal/classifier/priority"
	logx "notifai/pkg/logx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func notif(id, folder string, p priority.Tier, at time.Time) Notification {
	return Notification{
		ID: id, Package: "org.example.chat", AppName: "Chat",
		Title: "title " + id, Body: "body", ArrivedAt: at, Folder: folder, Priority: p,
	}
}

func TestDefaultFoldersSeeded(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	folders, err := s.AllFolders(context.Background())
	if err != nil {
		t.Fatalf("folders: %v", err)
	}
	var names []string
	for _, f := range folders {
		if !f.IsDefault {
			t.Fatalf("folder %s not default", f.Name)
		}
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"Work", "Personal", "Promotions", "Alerts"}, names); diff != "" {
		t.Fatalf("folders mismatch (-want +got):\n%s", diff)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "db", "notifai.db")
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Insert(context.Background(), notif("a", "Work", priority.High, time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = s.Close()

	s2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.Get(context.Background(), "a"); err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
}

func TestFetchUndeliveredMediumOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for _, n := range []Notification{
		notif("late", "Work", priority.Medium, base.Add(3*time.Minute)),
		notif("early", "Personal", priority.Medium, base.Add(time.Minute)),
		notif("high", "Alerts", priority.High, base),
		notif("low", "Promotions", priority.Low, base),
		notif("mid", "Work", priority.Medium, base.Add(2*time.Minute)),
	} {
		if err := s.Insert(ctx, n); err != nil {
			t.Fatalf("insert %s: %v", n.ID, err)
		}
	}
	if err := s.MarkDelivered(ctx, "mid"); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	got, err := s.FetchUndeliveredMedium(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var ids []string
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]string{"early", "late"}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if !got[0].ArrivedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("arrived_at round trip: %v", got[0].ArrivedAt)
	}

	high, err := s.FetchUndeliveredHigh(ctx)
	if err != nil {
		t.Fatalf("fetch high: %v", err)
	}
	if len(high) != 1 || high[0].ID != "high" {
		t.Fatalf("undelivered high=%+v", high)
	}
}

func TestInsertCoercesPriority(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Insert(ctx, notif("x", "Work", priority.Tier(9), time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	n, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Priority != priority.Default {
		t.Fatalf("priority=%v, want %v", n.Priority, priority.Default)
	}
}

func TestMarkRead(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.Insert(ctx, notif("r", "Work", priority.Low, time.Now()))
	if err := s.MarkRead(ctx, "r"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ := s.Get(ctx, "r"); !n.Read {
		t.Fatalf("not marked read")
	}
	if err := s.MarkRead(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestUpdateFolderRenamesRecordsAtomically(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	f, err := s.CreateFolder(ctx, "Gaming", "game updates")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.SortOrder != 4 {
		t.Fatalf("sort order=%d, want 4", f.SortOrder)
	}
	const n = 25
	for i := 0; i < n; i++ {
		if err := s.Insert(ctx, notif(fmt.Sprintf("g%02d", i), "Gaming", priority.Low, time.Now())); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	_ = s.Insert(ctx, notif("w", "Work", priority.Low, time.Now()))

	_, moved, err := s.UpdateFolder(ctx, f.ID, "Games", "all games")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if moved != n {
		t.Fatalf("moved=%d, want %d", moved, n)
	}
	counts, err := s.FolderCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"Games": n, "Work": 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestFolderRules(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateFolder(ctx, "work", ""); !errors.Is(err, ErrFolderExists) {
		t.Fatalf("duplicate create err=%v", err)
	}
	if _, _, err := s.UpdateFolder(ctx, "work", "Job", ""); !errors.Is(err, ErrDefaultFolder) {
		t.Fatalf("rename default err=%v", err)
	}
	if _, err := s.DeleteFolder(ctx, "alerts"); !errors.Is(err, ErrDefaultFolder) {
		t.Fatalf("delete default err=%v", err)
	}

	a, _ := s.CreateFolder(ctx, "Travel", "")
	b, _ := s.CreateFolder(ctx, "Health", "")
	if _, _, err := s.UpdateFolder(ctx, b.ID, "TRAVEL", ""); !errors.Is(err, ErrFolderExists) {
		t.Fatalf("rename collision err=%v", err)
	}

	_ = s.Insert(ctx, notif("t1", "Travel", priority.Low, time.Now()))
	removed, err := s.DeleteFolder(ctx, a.ID)
	if err != nil || removed != 1 {
		t.Fatalf("delete: removed=%d err=%v", removed, err)
	}
	if _, err := s.FolderByName(ctx, "travel"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("folder still present: %v", err)
	}
}

func TestRenameFolderReferences(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = s.Insert(ctx, notif(fmt.Sprintf("o%d", i), "Old", priority.Medium, time.Now()))
	}
	moved, err := s.RenameFolderReferences(ctx, "Old", "New")
	if err != nil || moved != 3 {
		t.Fatalf("moved=%d err=%v", moved, err)
	}
	left, _ := s.ListNotifications(ctx, ListFilter{Folder: "Old"})
	if len(left) != 0 {
		t.Fatalf("%d records still under old name", len(left))
	}
}

func TestMonitoredAndInstructions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if ok, err := s.MonitoredStatus(ctx, "org.example.mail"); err != nil || ok {
		t.Fatalf("unknown package: ok=%v err=%v", ok, err)
	}
	if err := s.SetMonitored(ctx, "org.example.mail", "Mail", true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetMonitored(ctx, "org.example.mail", "", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	apps, _ := s.MonitoredApps(ctx)
	if diff := cmp.Diff([]MonitoredApp{{Package: "org.example.mail", AppName: "Mail", Enabled: false}}, apps); diff != "" {
		t.Fatalf("apps mismatch (-want +got):\n%s", diff)
	}

	if v, _ := s.Instructions(ctx); v != "" {
		t.Fatalf("instructions=%q", v)
	}
	_ = s.SetInstructions(ctx, "Bank texts are Alerts")
	if v, _ := s.Instructions(ctx); v != "Bank texts are Alerts" {
		t.Fatalf("instructions=%q", v)
	}
	_ = s.SetInstructions(ctx, "  ")
	if v, _ := s.Instructions(ctx); v != "" {
		t.Fatalf("instructions not cleared: %q", v)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	_ = s.Insert(ctx, notif("old", "Work", priority.Low, now.Add(-48*time.Hour)))
	_ = s.Insert(ctx, notif("new", "Work", priority.Low, now))
	n, err := s.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("deleted=%d err=%v", n, err)
	}
	list, _ := s.ListNotifications(ctx, ListFilter{Limit: 10})
	if len(list) != 1 || list[0].ID != "new" {
		t.Fatalf("remaining=%+v", list)
	}
}
