package desktop

import (
	"context"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"notifai/internal/ingest"
	"notifai/internal/notifier"
)

func TestToPosted(t *testing.T) {
	t.Parallel()
	observed := time.UnixMilli(1_700_000_100_000)

	tests := []struct {
		name string
		call notifyCall
		want ingest.Posted
	}{
		{
			name: "desktop entry wins over app name",
			call: notifyCall{
				AppName: "Chat", Summary: "Ana", Body: "lunch?",
				Hints: map[string]dbus.Variant{
					hintDesktopEntry: dbus.MakeVariant("org.example.Chat.desktop"),
					hintCategory:     dbus.MakeVariant("im.received"),
				},
			},
			want: ingest.Posted{
				Package: "org.example.Chat", AppName: "Chat", Title: "Ana", Body: "lunch?",
				Category: "im.received", ObservedAt: observed,
			},
		},
		{
			name: "app name fallback",
			call: notifyCall{AppName: " mail ", Summary: "s"},
			want: ingest.Posted{Package: "mail", AppName: "mail", Title: "s", ObservedAt: observed},
		},
		{
			name: "resident and progress",
			call: notifyCall{
				AppName: "dl",
				Hints: map[string]dbus.Variant{
					hintResident: dbus.MakeVariant(true),
					hintValue:    dbus.MakeVariant(int32(40)),
				},
			},
			want: ingest.Posted{Package: "dl", AppName: "dl", Ongoing: true, Progress: true, ObservedAt: observed},
		},
		{
			name: "private hints",
			call: notifyCall{
				AppName: "svc",
				Hints: map[string]dbus.Variant{
					hintOngoing:    dbus.MakeVariant("true"),
					hintForeground: dbus.MakeVariant(byte(1)),
					hintTimestamp:  dbus.MakeVariant(int64(1_700_000_000_000)),
				},
			},
			want: ingest.Posted{
				Package: "svc", AppName: "svc", Ongoing: true, ForegroundService: true,
				SourceTime: time.UnixMilli(1_700_000_000_000), ObservedAt: observed,
			},
		},
		{
			name: "transient drops the ongoing flag",
			call: notifyCall{
				AppName: "svc",
				Hints: map[string]dbus.Variant{
					hintOngoing:   dbus.MakeVariant(true),
					hintTransient: dbus.MakeVariant(true),
				},
			},
			want: ingest.Posted{Package: "svc", AppName: "svc", ObservedAt: observed},
		},
		{
			name: "resident wins over transient",
			call: notifyCall{
				AppName: "svc",
				Hints: map[string]dbus.Variant{
					hintResident:  dbus.MakeVariant(true),
					hintTransient: dbus.MakeVariant(true),
				},
			},
			want: ingest.Posted{Package: "svc", AppName: "svc", Ongoing: true, ObservedAt: observed},
		},
		{
			name: "string timestamp from the generic hint",
			call: notifyCall{
				AppName: "a",
				Hints:   map[string]dbus.Variant{hintTimestamp2: dbus.MakeVariant("1700000000500")},
			},
			want: ingest.Posted{Package: "a", AppName: "a", SourceTime: time.UnixMilli(1_700_000_000_500), ObservedAt: observed},
		},
		{
			name: "non-positive timestamp ignored",
			call: notifyCall{
				AppName: "a",
				Hints:   map[string]dbus.Variant{hintTimestamp: dbus.MakeVariant(int64(-5))},
			},
			want: ingest.Posted{Package: "a", AppName: "a", ObservedAt: observed},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := toPosted(tt.call, observed)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("posted mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeMessage(t *testing.T) {
	t.Parallel()
	m := notifier.Message{
		AppName: "notifai", Icon: "mail", Title: "Bank: code", Body: "123",
		Urgency: notifier.UrgencyCritical, Category: "x-notifai.urgent",
		ReplacesID: 7, Actions: []string{"default", "Open"}, Timeout: 5 * time.Second,
	}
	c := encodeMessage(m, "notifai")
	want := notifyCall{
		AppName: "notifai", ReplacesID: 7, Icon: "mail", Summary: "Bank: code", Body: "123",
		Actions: []string{"default", "Open"}, Timeout: 5000,
		Hints: map[string]dbus.Variant{
			hintUrgency:      dbus.MakeVariant(byte(2)),
			hintCategory:     dbus.MakeVariant("x-notifai.urgent"),
			hintDesktopEntry: dbus.MakeVariant("notifai"),
		},
	}
	if diff := cmp.Diff(want, c, cmp.Comparer(func(a, b dbus.Variant) bool { return a.String() == b.String() })); diff != "" {
		t.Fatalf("call mismatch (-want +got):\n%s", diff)
	}

	// An encoded message seen by the monitor maps back onto our own id.
	p := toPosted(c, time.Time{})
	if p.Package != "notifai" {
		t.Fatalf("package=%q", p.Package)
	}
}

func TestNotifyArgsRoundTrip(t *testing.T) {
	t.Parallel()
	c := encodeMessage(notifier.Message{AppName: "a", Title: "t"}, "")
	if c.Timeout != -1 {
		t.Fatalf("timeout=%d, want server default", c.Timeout)
	}
	got, err := decodeNotify(c.args())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(c, got, cmpopts.EquateEmpty(), cmp.Comparer(func(a, b dbus.Variant) bool { return a.String() == b.String() })); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestIsBusName(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"org.gnome.Evolution":   true,
		"org.example.my-app":    true,
		"firefox":               false,
		":1.42":                 false,
		"org..example":          false,
		"org.1example":          false,
		"org.example.bad name":  false,
		"":                      false,
		"com.example.App_2.sub": true,
	}
	for in, want := range tests {
		if got := isBusName(in); got != want {
			t.Errorf("isBusName(%q)=%v, want %v", in, got, want)
		}
	}
	if got := objectPathFor("org.example.my-app"); got != "/org/example/my_app" {
		t.Fatalf("path=%q", got)
	}
}

func TestDecodeAction(t *testing.T) {
	t.Parallel()
	id, action, ok := decodeAction(&dbus.Signal{
		Name: "org.freedesktop.Notifications.ActionInvoked",
		Body: []any{uint32(12), "default"},
	})
	if !ok || id != 12 || action != "default" {
		t.Fatalf("got id=%d action=%q ok=%v", id, action, ok)
	}
	if _, _, ok := decodeAction(&dbus.Signal{Name: "org.freedesktop.Notifications.NotificationClosed", Body: []any{uint32(1), uint32(2)}}); ok {
		t.Fatalf("closed signal decoded as action")
	}
}

func TestLauncherRejectsEmptyID(t *testing.T) {
	t.Parallel()
	if err := (Launcher{}).Launch(context.Background(), " "); err == nil {
		t.Fatalf("expected error")
	}
}
