package desktop

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"notifai/internal/ingest"
	logx "notifai/pkg/logx"
)

const monitorRule = "type='method_call',interface='org.freedesktop.Notifications',member='Notify'"

// PostedHandler receives every Notify call seen on the bus.
type PostedHandler func(ctx context.Context, p ingest.Posted)

// Monitor eavesdrops on Notify calls. It needs its own connection: once a
// connection becomes a monitor the bus rejects anything it sends.
type Monitor struct {
	client *Client
	log    logx.Logger
	dial   func(ctx context.Context) (*dbus.Conn, error)
	now    func() time.Time
}

// NewMonitor builds a monitor whose capabilities activate applications
// through client.
func NewMonitor(client *Client, log logx.Logger) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{
		client: client,
		log:    log.With(logx.String("comp", "desktop.monitor")),
		dial: func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSessionBus(dbus.WithContext(ctx))
		},
		now: time.Now,
	}
}

// Run forwards Notify calls to fn until ctx ends or the bus goes away.
func (m *Monitor) Run(ctx context.Context, fn PostedHandler) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("monitor connection: %w", err)
	}
	defer conn.Close()

	call := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.Monitoring.BecomeMonitor", 0, []string{monitorRule}, uint32(0))
	if call.Err != nil {
		return fmt.Errorf("becoming monitor: %w", call.Err)
	}
	ch := make(chan *dbus.Message, 64)
	conn.Eavesdrop(ch)
	m.log.Info("watching desktop notifications")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			p, ok := m.posted(msg)
			if !ok {
				continue
			}
			fn(ctx, p)
		}
	}
}

func (m *Monitor) posted(msg *dbus.Message) (ingest.Posted, bool) {
	if msg == nil || msg.Type != dbus.TypeMethodCall {
		return ingest.Posted{}, false
	}
	if member, _ := msg.Headers[dbus.FieldMember].Value().(string); member != "Notify" {
		return ingest.Posted{}, false
	}
	c, err := decodeNotify(msg.Body)
	if err != nil {
		m.log.Debug("undecodable Notify call", logx.Err(err))
		return ingest.Posted{}, false
	}
	p := toPosted(c, m.now())
	if m.client != nil {
		if a := m.client.Capability(p.Package); a != nil {
			p.Capability = a
		}
	}
	return p, true
}
