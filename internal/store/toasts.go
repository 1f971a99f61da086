package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"nyordd/internal/notif"
)

// Default lifetimes. Errors linger longer so the user can actually read them.
const (
	toastDefaultTTL = 4 * time.Second
	toastErrorTTL   = 6 * time.Second
)

// ToastQueue holds the currently visible toasts. Each toast auto-expires on
// its own timer; removing a toast early cancels the timer. The queue
// satisfies logx.ToastSink so log-driven toasts flow through the same path.
type ToastQueue struct {
	mu     sync.Mutex
	toasts []notif.Toast
	timers map[string]*time.Timer
	closed bool
}

func NewToastQueue() *ToastQueue {
	return &ToastQueue{timers: map[string]*time.Timer{}}
}

// Push adds a toast and arms its expiry timer. Missing fields are filled in:
// id, timestamp and the type-based default duration.
func (q *ToastQueue) Push(t notif.Toast) notif.Toast {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	if t.Duration <= 0 {
		t.Duration = toastDefaultTTL
		if t.Type == notif.ToastError {
			t.Duration = toastErrorTTL
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return t
	}
	q.toasts = append(q.toasts, t)
	id := t.ID
	q.timers[id] = time.AfterFunc(t.Duration, func() { q.Remove(id) })
	return t
}

// PushToast implements logx.ToastSink.
func (q *ToastQueue) PushToast(t notif.Toast) { q.Push(t) }

// Remove drops a toast and cancels its timer. Unknown ids are a no-op.
func (q *ToastQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tm, ok := q.timers[id]; ok {
		tm.Stop()
		delete(q.timers, id)
	}
	for i, t := range q.toasts {
		if t.ID == id {
			q.toasts = append(q.toasts[:i], q.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the visible toasts in arrival order.
func (q *ToastQueue) List() []notif.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]notif.Toast(nil), q.toasts...)
}

// Close cancels all timers and rejects further pushes.
func (q *ToastQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for id, tm := range q.timers {
		tm.Stop()
		delete(q.timers, id)
	}
	q.toasts = nil
}

// Convenience constructors mirroring the severities.

func (q *ToastQueue) Success(title, msg string) notif.Toast {
	return q.Push(notif.Toast{Type: notif.ToastSuccess, Title: title, Message: msg})
}

func (q *ToastQueue) Error(title, msg string) notif.Toast {
	return q.Push(notif.Toast{Type: notif.ToastError, Title: title, Message: msg})
}

func (q *ToastQueue) Warning(title, msg string) notif.Toast {
	return q.Push(notif.Toast{Type: notif.ToastWarning, Title: title, Message: msg})
}

func (q *ToastQueue) Info(title, msg string) notif.Toast {
	return q.Push(notif.Toast{Type: notif.ToastInfo, Title: title, Message: msg})
}
