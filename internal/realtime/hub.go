package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// EventNewNotification is the event name carried by pushed notifications.
const EventNewNotification = "newNotification"

// ErrNoSession is returned when a user has no open connection.
var ErrNoSession = errors.New("no websocket session")

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Envelope is the frame written to clients.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type session struct {
	conn Conn
	mu   sync.Mutex
}

func (s *session) send(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(env)
}

// Hub tracks open connections per user. A user may hold several.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*session]struct{}
	logger   *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{sessions: make(map[string]map[*session]struct{}), logger: logger}
}

// Register adds a connection for userID and returns a func that removes it.
func (h *Hub) Register(userID string, conn Conn) (unregister func()) {
	s := &session{conn: conn}

	h.mu.Lock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*session]struct{})
	}
	h.sessions[userID][s] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.sessions[userID], s)
		if len(h.sessions[userID]) == 0 {
			delete(h.sessions, userID)
		}
		h.mu.Unlock()
		_ = conn.Close()
	}
}

// Connections returns the number of open connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Push writes an event to every connection of userID. It returns
// ErrNoSession if the user is offline; failed connections are dropped.
func (h *Hub) Push(userID, event string, data any) error {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return ErrNoSession
	}

	var firstErr error
	for _, s := range targets {
		if err := s.send(Envelope{Event: event, Data: data}); err != nil {
			h.logger.Warn("ws send failed", "user_id", userID, "error", err)
			h.drop(userID, s)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *Hub) drop(userID string, s *session) {
	h.mu.Lock()
	delete(h.sessions[userID], s)
	if len(h.sessions[userID]) == 0 {
		delete(h.sessions, userID)
	}
	h.mu.Unlock()
	_ = s.conn.Close()
}
