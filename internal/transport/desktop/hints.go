package desktop

import (
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"notifai/internal/ingest"
	"notifai/internal/notifier"
)

// Hint keys understood on both directions of the Notify call.
const (
	hintDesktopEntry = "desktop-entry"
	hintUrgency      = "urgency"
	hintCategory     = "category"
	hintResident     = "resident"
	hintTransient    = "transient"
	hintValue        = "value"

	hintOngoing    = "x-notifai-ongoing"
	hintForeground = "x-notifai-foreground-service"
	hintTimestamp  = "x-notifai-timestamp"
	hintTimestamp2 = "x-timestamp"
)

// notifyCall is the argument list of org.freedesktop.Notifications.Notify.
type notifyCall struct {
	AppName    string
	ReplacesID uint32
	Icon       string
	Summary    string
	Body       string
	Actions    []string
	Hints      map[string]dbus.Variant
	Timeout    int32
}

func (c *notifyCall) args() []any {
	actions := c.Actions
	if actions == nil {
		actions = []string{}
	}
	hints := c.Hints
	if hints == nil {
		hints = map[string]dbus.Variant{}
	}
	return []any{c.AppName, c.ReplacesID, c.Icon, c.Summary, c.Body, actions, hints, c.Timeout}
}

func decodeNotify(body []any) (notifyCall, error) {
	var c notifyCall
	err := dbus.Store(body, &c.AppName, &c.ReplacesID, &c.Icon, &c.Summary, &c.Body, &c.Actions, &c.Hints, &c.Timeout)
	return c, err
}

// encodeMessage builds the Notify arguments for m. selfID tags the message
// so the monitor recognizes its own output.
func encodeMessage(m notifier.Message, selfID string) notifyCall {
	hints := map[string]dbus.Variant{
		hintUrgency: dbus.MakeVariant(byte(m.Urgency)),
	}
	if m.Category != "" {
		hints[hintCategory] = dbus.MakeVariant(m.Category)
	}
	if selfID != "" {
		hints[hintDesktopEntry] = dbus.MakeVariant(selfID)
	}
	return notifyCall{
		AppName:    m.AppName,
		ReplacesID: m.ReplacesID,
		Icon:       m.Icon,
		Summary:    m.Title,
		Body:       m.Body,
		Actions:    m.Actions,
		Hints:      hints,
		Timeout:    timeoutMillis(m.Timeout),
	}
}

// timeoutMillis maps a zero duration to the server default (-1).
func timeoutMillis(d time.Duration) int32 {
	if d <= 0 {
		return -1
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int32(ms)
}

// toPosted converts an observed Notify call into an ingest event. The
// capability is filled in by the caller.
func toPosted(c notifyCall, observed time.Time) ingest.Posted {
	return ingest.Posted{
		Package:           packageOf(c),
		AppName:           strings.TrimSpace(c.AppName),
		Title:             c.Summary,
		Body:              c.Body,
		Ongoing:           ongoing(c.Hints),
		ForegroundService: hintBool(c.Hints, hintForeground),
		Progress:          hasHint(c.Hints, hintValue),
		Category:          hintString(c.Hints, hintCategory),
		SourceTime:        sourceTime(c.Hints),
		ObservedAt:        observed,
	}
}

// ongoing reports a resident notification, or one flagged ongoing by its
// sender that did not also ask to be transient.
func ongoing(h map[string]dbus.Variant) bool {
	if hintBool(h, hintResident) {
		return true
	}
	return hintBool(h, hintOngoing) && !hintBool(h, hintTransient)
}

func packageOf(c notifyCall) string {
	if id := strings.TrimSuffix(strings.TrimSpace(hintString(c.Hints, hintDesktopEntry)), ".desktop"); id != "" {
		return id
	}
	return strings.TrimSpace(c.AppName)
}

func sourceTime(h map[string]dbus.Variant) time.Time {
	for _, k := range []string{hintTimestamp, hintTimestamp2} {
		if ms, ok := hintInt(h, k); ok && ms > 0 {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

func hasHint(h map[string]dbus.Variant, key string) bool {
	_, ok := h[key]
	return ok
}

func hintString(h map[string]dbus.Variant, key string) string {
	v, ok := h[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func hintBool(h map[string]dbus.Variant, key string) bool {
	v, ok := h[key]
	if !ok {
		return false
	}
	switch x := v.Value().(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	n, ok := hintInt(h, key)
	return ok && n != 0
}

func hintInt(h map[string]dbus.Variant, key string) (int64, bool) {
	v, ok := h[key]
	if !ok {
		return 0, false
	}
	switch x := v.Value().(type) {
	case byte:
		return int64(x), true
	case int16:
		return int64(x), true
	case uint16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint32:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// isBusName reports whether s is a valid well-known bus name.
func isBusName(s string) bool {
	if len(s) == 0 || len(s) > 255 || strings.HasPrefix(s, ":") {
		return false
	}
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || (p[0] >= '0' && p[0] <= '9') {
			return false
		}
		for _, r := range p {
			ok := r == '_' || r == '-' ||
				(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				return false
			}
		}
	}
	return true
}

// objectPathFor derives the org.freedesktop.Application object path for a
// bus name: dots become slashes and dashes become underscores.
func objectPathFor(name string) dbus.ObjectPath {
	p := "/" + strings.NewReplacer(".", "/", "-", "_").Replace(name)
	return dbus.ObjectPath(p)
}
