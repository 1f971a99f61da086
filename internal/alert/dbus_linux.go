//go:build linux

package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"
	closeMethod  = "org.freedesktop.Notifications.CloseNotification"

	appName = "nyordd"
)

// dbusPlatform talks to the session notification daemon. The connection is
// opened lazily so a missing session bus degrades to Supported() == false
// instead of failing startup.
type dbusPlatform struct {
	mu   sync.Mutex
	conn *dbus.Conn
	// replaces_id bookkeeping per tag
	byTag map[string]uint32
}

// NewPlatform returns the host notification surface.
func NewPlatform() Platform {
	return &dbusPlatform{byTag: map[string]uint32{}}
}

func (p *dbusPlatform) object() (dbus.BusObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		conn, err := dbus.SessionBus()
		if err != nil {
			return nil, fmt.Errorf("session bus: %w", err)
		}
		p.conn = conn
	}
	return p.conn.Object(notifyDest, notifyPath), nil
}

func (p *dbusPlatform) Supported() bool {
	obj, err := p.object()
	if err != nil {
		return false
	}
	// GetCapabilities doubles as a liveness probe for the daemon.
	call := obj.Call("org.freedesktop.Notifications.GetCapabilities", 0)
	return call.Err == nil
}

func (p *dbusPlatform) Show(ctx context.Context, req Request) (uint32, error) {
	obj, err := p.object()
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	replaces := p.byTag[req.Tag]
	p.mu.Unlock()

	timeout := int32(expireTimeoutMs)
	if req.Expire > 0 {
		timeout = int32(req.Expire / time.Millisecond)
	}
	hints := map[string]dbus.Variant{}
	if req.Sticky {
		timeout = 0
		hints["urgency"] = dbus.MakeVariant(byte(2))
		hints["resident"] = dbus.MakeVariant(true)
	}

	call := obj.CallWithContext(ctx, notifyMethod, 0,
		appName, replaces, req.Icon, req.Title, req.Body,
		[]string{}, hints, timeout,
	)
	if call.Err != nil {
		return 0, fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("notify reply: %w", err)
	}

	if req.Tag != "" {
		p.mu.Lock()
		p.byTag[req.Tag] = id
		p.mu.Unlock()
	}
	return id, nil
}

func (p *dbusPlatform) Close(ctx context.Context, id uint32) error {
	if id == 0 {
		return nil
	}
	obj, err := p.object()
	if err != nil {
		return err
	}
	if call := obj.CallWithContext(ctx, closeMethod, 0, id); call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	return nil
}
