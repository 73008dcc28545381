package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"carpool/internal/logging"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  []Envelope
	failing bool
	closed  bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, v.(Envelope))
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestHub_PushReachesEveryConnectionOfUser(t *testing.T) {
	t.Parallel()

	hub := NewHub(logging.Discard())
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Register("user-1", a)
	hub.Register("user-1", b)
	hub.Register("user-2", other)

	if err := hub.Push("user-1", EventNewNotification, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a.frames) != 1 || len(b.frames) != 1 {
		t.Errorf("expected one frame per connection, got %d and %d", len(a.frames), len(b.frames))
	}
	if len(other.frames) != 0 {
		t.Error("other user should not receive the push")
	}
	if a.frames[0].Event != EventNewNotification {
		t.Errorf("expected event %s, got %s", EventNewNotification, a.frames[0].Event)
	}
}

func TestHub_PushOfflineUser(t *testing.T) {
	t.Parallel()

	hub := NewHub(logging.Discard())
	if err := hub.Push("nobody", EventNewNotification, nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestHub_UnregisterAndDropBrokenConnection(t *testing.T) {
	t.Parallel()

	hub := NewHub(logging.Discard())
	good, broken := &fakeConn{}, &fakeConn{failing: true}
	unregister := hub.Register("user-1", good)
	hub.Register("user-1", broken)

	if err := hub.Push("user-1", EventNewNotification, 1); err == nil {
		t.Fatal("expected error from broken connection")
	}
	if !broken.closed {
		t.Error("broken connection should be closed")
	}
	if hub.Connections("user-1") != 1 {
		t.Errorf("expected 1 connection left, got %d", hub.Connections("user-1"))
	}

	unregister()
	if hub.Connections("user-1") != 0 {
		t.Error("expected no connections after unregister")
	}
}
