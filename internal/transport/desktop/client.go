// Package desktop talks to the freedesktop notification server on the
// session bus. It shows notifications, watches other applications' Notify
// calls and reports action clicks.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"notifai/internal/notifier"
	logx "notifai/pkg/logx"
)

const (
	notificationsName  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications"

	applicationIface = "org.freedesktop.Application"
)

var ErrClosed = errors.New("desktop: connection closed")

// Client is a session bus connection used to send notifications and to
// activate applications.
type Client struct {
	conn   *dbus.Conn
	selfID string
	log    logx.Logger

	closeOnce sync.Once
}

// Dial opens a private session bus connection. It closes when ctx ends.
func Dial(ctx context.Context, selfID string, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	return newClient(conn, selfID, log), nil
}

func newClient(conn *dbus.Conn, selfID string, log logx.Logger) *Client {
	return &Client{conn: conn, selfID: selfID, log: log.With(logx.String("comp", "desktop"))}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

// Send implements notifier.Sender.
func (c *Client) Send(ctx context.Context, m notifier.Message) (uint32, error) {
	if !c.conn.Connected() {
		return 0, ErrClosed
	}
	call := encodeMessage(m, c.selfID)
	obj := c.conn.Object(notificationsName, notificationsPath)
	var id uint32
	if err := obj.CallWithContext(ctx, notificationsIface+".Notify", 0, call.args()...).Store(&id); err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}
	return id, nil
}

// Alert implements logx.Alerter.
func (c *Client) Alert(ctx context.Context, summary, body string) error {
	_, err := c.Send(ctx, notifier.Message{
		AppName:  c.selfID,
		Icon:     "dialog-error",
		Title:    summary,
		Body:     body,
		Urgency:  notifier.UrgencyNormal,
		Category: "x-notifai.log",
	})
	return err
}

// Capability returns a handle that activates the application owning the
// well-known bus name, or nil when name cannot be one.
func (c *Client) Capability(name string) *Activation {
	if !isBusName(name) {
		return nil
	}
	return &Activation{conn: c.conn, name: name}
}

// Activation re-opens an application through org.freedesktop.Application.
type Activation struct {
	conn *dbus.Conn
	name string
}

func (a *Activation) Reopen(ctx context.Context) error {
	obj := a.conn.Object(a.name, objectPathFor(a.name))
	call := obj.CallWithContext(ctx, applicationIface+".Activate", 0, map[string]dbus.Variant{})
	if call.Err != nil {
		return fmt.Errorf("activating %s: %w", a.name, call.Err)
	}
	return nil
}

// ActionHandler receives the server id of a clicked notification and the
// action key.
type ActionHandler func(ctx context.Context, serverID uint32, action string)

// WatchActions delivers ActionInvoked signals to fn until ctx ends.
func (c *Client) WatchActions(ctx context.Context, fn ActionHandler) error {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(notificationsPath),
		dbus.WithMatchInterface(notificationsIface),
		dbus.WithMatchMember("ActionInvoked"),
	}
	if err := c.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return fmt.Errorf("subscribing to actions: %w", err)
	}
	ch := make(chan *dbus.Signal, 16)
	c.conn.Signal(ch)
	defer func() {
		c.conn.RemoveSignal(ch)
		_ = c.conn.RemoveMatchSignal(opts...)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			id, action, ok := decodeAction(sig)
			if !ok {
				continue
			}
			c.log.Debug("notification action", logx.Uint64("server_id", uint64(id)), logx.String("action", action))
			fn(ctx, id, action)
		}
	}
}

func decodeAction(sig *dbus.Signal) (uint32, string, bool) {
	if sig == nil || sig.Name != notificationsIface+".ActionInvoked" {
		return 0, "", false
	}
	var (
		id     uint32
		action string
	)
	if err := dbus.Store(sig.Body, &id, &action); err != nil {
		return 0, "", false
	}
	return id, action, true
}
